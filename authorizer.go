package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Decision is the outcome of an authorization pass.
type Decision int

const (
	DecisionNotAuthenticated Decision = iota
	DecisionBootstrapAllowed
	DecisionAuthenticated
	DecisionForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionBootstrapAllowed:
		return "bootstrap-allowed"
	case DecisionAuthenticated:
		return "authenticated"
	case DecisionForbidden:
		return "forbidden"
	default:
		return "not-authenticated"
	}
}

// Challenge names the WWW-Authenticate scheme a rejection should carry.
type Challenge string

const (
	ChallengeNone   Challenge = ""
	ChallengeBasic  Challenge = "Basic"
	ChallengeBearer Challenge = "Bearer"
)

// Carriers holds whatever credentials arrived with a request. Empty
// fields mean the carrier is absent; the HTTP boundary fills this in
// from the cookie and Authorization header.
type Carriers struct {
	SessionToken  string
	BasicEmail    string
	BasicPassword string
	BearerToken   string
}

func (c Carriers) HasSession() bool { return c.SessionToken != "" }
func (c Carriers) HasBasic() bool   { return c.BasicEmail != "" && c.BasicPassword != "" }
func (c Carriers) HasBearer() bool  { return c.BearerToken != "" }

// Result is the authorization outcome plus the material the transport
// needs to respond: the resolved identity on success, the session token
// to (re)set as a cookie when one was issued, and the challenge scheme
// on rejection.
type Result struct {
	Decision     Decision
	Identity     *Identity
	SessionToken string
	Challenge    Challenge
}

// Authorizer runs the layered carrier decision: bootstrap bypass,
// disabled check, then session, Basic, and Bearer in priority order.
// The cookie goes first because it is the lowest-friction carrier;
// Bearer stays last as a machine-to-machine channel that never
// implicitly creates sessions.
type Authorizer struct {
	cfg      Config
	tokens   *TokenStore
	verifier PasswordVerifier
	resolver IdentityResolver
	logger   Logger
}

type AuthorizerOption func(*Authorizer)

func WithAuthorizerLogger(logger Logger) AuthorizerOption {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthorizer(cfg Config, tokens *TokenStore, verifier PasswordVerifier, resolver IdentityResolver, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		cfg:      cfg,
		tokens:   tokens,
		verifier: verifier,
		resolver: resolver,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authorize decides one of bootstrap-allowed, authenticated, forbidden,
// or not-authenticated for the given carriers. Errors are reserved for
// store and crypto failures; every credential problem is expressed in
// the Result so the transport can challenge without unwrapping.
func (a *Authorizer) Authorize(ctx context.Context, carriers Carriers) (*Result, error) {
	if a.cfg.GetFirstUserBootstrap() {
		count, err := a.resolver.Count(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to count identities")
		}
		if count == 0 {
			return &Result{Decision: DecisionBootstrapAllowed}, nil
		}
	}

	identity, err := a.resolveIdentity(ctx, carriers)
	if err != nil {
		return nil, err
	}

	// A resolved but disabled identity is terminal: retrying with other
	// credentials will not help, so no challenge is offered.
	if identity != nil && !identity.Enabled {
		return &Result{Decision: DecisionForbidden, Identity: identity}, nil
	}

	if carriers.HasSession() && identity != nil {
		claim, err := a.tokens.Authenticate(ctx, carriers.SessionToken, identity.ID)
		// The cookie channel only carries session tokens; an access token
		// smuggled into the cookie is not a session.
		if err == nil && claim.Kind == KindSession {
			return &Result{
				Decision:     DecisionAuthenticated,
				Identity:     identity,
				SessionToken: carriers.SessionToken,
			}, nil
		}
		// A stale session is not fatal while fresher carriers remain.
		if err != nil && !IsNotAuthenticated(err) {
			return nil, err
		}
		a.logger.Debug("stale session for subject %s, trying next carrier", identity.ID)
	}

	if carriers.HasBasic() {
		if identity != nil && identity.IsInternal() &&
			a.verifier.Verify(carriers.BasicPassword, identity.Credential) {
			session, err := a.tokens.CreateSession(ctx, identity.ID)
			if err != nil {
				return nil, err
			}
			return &Result{
				Decision:     DecisionAuthenticated,
				Identity:     identity,
				SessionToken: session,
			}, nil
		}
		return &Result{Decision: DecisionNotAuthenticated, Challenge: ChallengeBasic}, nil
	}

	if carriers.HasBearer() {
		expected := uuid.Nil
		if identity != nil {
			expected = identity.ID
		}
		claim, err := a.tokens.Authenticate(ctx, carriers.BearerToken, expected)
		if err == nil && claim.Kind == KindAccess && identity != nil && claim.Subject == identity.ID {
			return &Result{Decision: DecisionAuthenticated, Identity: identity}, nil
		}
		if err != nil && !IsNotAuthenticated(err) {
			return nil, err
		}
		return &Result{Decision: DecisionNotAuthenticated, Challenge: ChallengeBearer}, nil
	}

	return &Result{Decision: DecisionNotAuthenticated, Challenge: ChallengeBasic}, nil
}

// resolveIdentity finds the Identity implied by whichever carrier is
// present, without trusting the carrier yet: the token subject is only
// a lookup hint until the full authenticate step runs. Unknown subjects
// resolve to nil rather than failing so the decision chain can reach
// its own verdict.
func (a *Authorizer) resolveIdentity(ctx context.Context, carriers Carriers) (*Identity, error) {
	subject := uuid.Nil

	switch {
	case carriers.HasSession():
		subject = a.peekSubject(carriers.SessionToken)
	case carriers.HasBasic():
		if id, err := IdentityID(carriers.BasicEmail); err == nil {
			subject = id
		}
	case carriers.HasBearer():
		subject = a.peekSubject(carriers.BearerToken)
	}

	if subject == uuid.Nil {
		return nil, nil
	}

	identity, err := a.resolver.Resolve(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) || errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve identity")
	}
	return identity, nil
}

// peekSubject extracts the subject from a token with the signature
// verified but expiry ignored. Expiry is enforced later by the store;
// here the subject only selects which identity row to load.
func (a *Authorizer) peekSubject(token string) uuid.UUID {
	signature, claimBytes, err := DecodeToken(token)
	if err != nil {
		return uuid.Nil
	}
	if !a.tokens.signer.Verify(claimBytes, signature) {
		return uuid.Nil
	}
	claim, err := DecodeClaim(claimBytes)
	if err != nil {
		return uuid.Nil
	}
	return claim.Subject
}
