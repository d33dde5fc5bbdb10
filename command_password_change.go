package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	Identifier      string `json:"identifier" doc:"Identity id or email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	CurrentSession  string `json:"current_session" doc:"Session token to keep alive"`
}

func (e ChangePasswordMessage) Type() string { return "identity.password.change" }

// ChangePasswordHandler rotates an internal identity's credential:
// verify the current password, enforce the policy on the new one,
// re-hash, and revoke every other live token for the subject.
type ChangePasswordHandler struct {
	repo   RepositoryManager
	hasher *Hasher
	tokens *TokenStore
	policy PasswordPolicy
	logger Logger
}

func NewChangePasswordHandler(repo RepositoryManager, hasher *Hasher, tokens *TokenStore) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		policy: DefaultPasswordPolicy(),
		logger: defLogger{},
	}
}

// WithPolicy overrides the password policy applied to the new password.
func (h *ChangePasswordHandler) WithPolicy(policy PasswordPolicy) *ChangePasswordHandler {
	h.policy = policy
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identity, err := h.repo.Identities().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrNotAuthenticated
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve identity")
	}

	// External-provider identities hold no credential to rotate.
	if !identity.IsInternal() {
		return ErrNotAuthenticated
	}

	if !h.hasher.Verify(event.CurrentPassword, identity.Credential) {
		return ErrNotAuthenticated
	}

	if !h.policy.Validate(event.NewPassword) {
		return goerrors.Wrap(ErrPasswordStrength, goerrors.CategoryValidation, h.policy.Describe()).
			WithTextCode(TextCodePasswordStrength).
			WithCode(422)
	}

	credential, err := h.hasher.Hash(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Identities().SetCredentialTx(ctx, tx, identity.ID, credential); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update credential")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	// Best effort: a credential rotation should not fail because token
	// cleanup did, but every other session must go.
	except := []string{}
	if event.CurrentSession != "" {
		except = append(except, event.CurrentSession)
	}
	if err := h.tokens.RevokeAll(ctx, identity.ID, except...); err != nil {
		h.logger.Warn("failed to revoke tokens after password change for %s: %v", identity.ID, err)
	}

	return nil
}
