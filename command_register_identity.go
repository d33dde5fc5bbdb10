package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterIdentityMessage struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Provider string `json:"provider"`
}

func (e RegisterIdentityMessage) Type() string { return "identity.register" }

// Validate checks the message shape. Password strength is enforced
// separately by the handler's policy so the caller gets the dedicated
// error kind with the policy description.
func (e RegisterIdentityMessage) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Name, validation.Length(0, 200)),
	}
	// External-provider registrations carry no password at all.
	if e.Provider == "" || e.Provider == ProviderInternal {
		rules = append(rules, validation.Field(&e.Password, validation.Required))
	}
	return validation.ValidateStruct(&e, rules...)
}

// RegisterIdentityHandler creates an identity with a hashed, peppered
// credential. External-provider registrations carry no password and
// store no credential.
type RegisterIdentityHandler struct {
	repo   RepositoryManager
	hasher *Hasher
	policy PasswordPolicy
	logger Logger
}

func NewRegisterIdentityHandler(repo RepositoryManager, hasher *Hasher) *RegisterIdentityHandler {
	return &RegisterIdentityHandler{
		repo:   repo,
		hasher: hasher,
		policy: DefaultPasswordPolicy(),
		logger: defLogger{},
	}
}

// WithPolicy overrides the password policy applied at registration.
func (h *RegisterIdentityHandler) WithPolicy(policy PasswordPolicy) *RegisterIdentityHandler {
	h.policy = policy
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterIdentityHandler) WithLogger(logger Logger) *RegisterIdentityHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterIdentityHandler) Execute(ctx context.Context, event RegisterIdentityMessage) (*Identity, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during identity registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterIdentityHandler) execute(ctx context.Context, event RegisterIdentityMessage) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	identity := &Identity{
		Email:    event.Email,
		Name:     event.Name,
		Phone:    event.Phone,
		Provider: event.Provider,
		Enabled:  true,
	}

	if identity.Provider == "" || identity.Provider == ProviderInternal {
		identity.Provider = ProviderInternal
		if !h.policy.Validate(event.Password) {
			return nil, goerrors.Wrap(ErrPasswordStrength, goerrors.CategoryValidation, h.policy.Describe()).
				WithTextCode(TextCodePasswordStrength).
				WithCode(422)
		}

		credential, err := h.hasher.Hash(event.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		identity.Credential = credential
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if identity, err = h.repo.Identities().RegisterTx(ctx, tx, identity); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create identity")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity registration transaction failed")
	}

	h.logger.Info("registered identity %s (%s)", identity.ID, identity.Provider)

	return identity, nil
}
