package auth

import (
	"context"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ExternalAssertion is the verified outcome of a provider-issued
// token: who the provider says the user is. Account management consumes
// this to create or link external identities; the authorizer never
// touches it, which keeps third-party protocol flows outside the
// credential core.
type ExternalAssertion struct {
	Email    string
	Provider string
	Subject  string
}

// AssertionValidator validates externally issued tokens into
// assertions without tying callers to a specific verification scheme.
type AssertionValidator interface {
	Validate(tokenString string) (*ExternalAssertion, error)
}

// AssertionValidatorFunc adapts a function into an AssertionValidator.
type AssertionValidatorFunc func(tokenString string) (*ExternalAssertion, error)

func (f AssertionValidatorFunc) Validate(tokenString string) (*ExternalAssertion, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// ExternalValidator verifies provider-issued JWTs against the
// provider's JWKS endpoint. The provider must attest the email: tokens
// without a verified email never become assertions.
type ExternalValidator struct {
	provider string
	keyfunc  jwt.Keyfunc
	jwks     *keyfunc.JWKS
}

var _ AssertionValidator = (*ExternalValidator)(nil)

// NewExternalValidator fetches the provider's JWKS and keeps it
// refreshed in the background until ctx is done.
func NewExternalValidator(ctx context.Context, provider, jwksURL string) (*ExternalValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx: ctx,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch provider JWK set")
	}
	return &ExternalValidator{
		provider: provider,
		keyfunc:  jwks.Keyfunc,
		jwks:     jwks,
	}, nil
}

// NewExternalValidatorWithKeyfunc builds a validator around an explicit
// key function; used with pre-shared keys and in tests.
func NewExternalValidatorWithKeyfunc(provider string, fn jwt.Keyfunc) *ExternalValidator {
	return &ExternalValidator{
		provider: provider,
		keyfunc:  fn,
	}
}

// Close stops the background JWKS refresh.
func (v *ExternalValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type externalClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

func (v *ExternalValidator) Validate(tokenString string) (*ExternalAssertion, error) {
	claims := &externalClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		switch {
		case goerrors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case goerrors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "provider token rejected").
				WithTextCode(TextCodeNotAuthenticated).
				WithCode(goerrors.CodeUnauthorized)
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &ExternalAssertion{
		Email:    NormalizeEmail(claims.Email),
		Provider: v.provider,
		Subject:  claims.Subject,
	}, nil
}
