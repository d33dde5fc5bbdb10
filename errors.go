package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeNotAuthenticated = "not_authenticated"
	TextCodeAccountDisabled  = "account_disabled"
	TextCodePasswordStrength = "password_strength"
	TextCodeTokenExpired     = "token_expired"
	TextCodeTokenMalformed   = "token_malformed"
	TextCodeIdentityNotFound = "identity_not_found"
	TextCodeEmailNotVerified = "email_not_verified"
)

// ErrNotAuthenticated covers bad, missing, expired, or tampered
// credentials. Safe to retry with different credentials.
var ErrNotAuthenticated = errors.New("not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden means the identity resolved but is disabled. Retrying
// with different credentials will not help.
var ErrForbidden = errors.New("account disabled", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrPasswordStrength is returned when a password fails the configured
// policy at creation or change time.
var ErrPasswordStrength = errors.New("password does not meet the configured policy", errors.CategoryValidation).
	WithTextCode(TextCodePasswordStrength).
	WithCode(422)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when a claim's validity window has elapsed.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token string cannot be decoded or
// its signature does not verify.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when an external provider assertion
// carries an unverified email.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeUnauthorized)

// IsNotAuthenticated reports whether err is the retriable credential
// failure kind, so callers can fall through to the next carrier.
func IsNotAuthenticated(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed) {
		return true
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryAuth
	}
	return false
}

// IsForbidden reports whether err is the terminal disabled-identity kind.
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrForbidden) {
		return true
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryAuthz
	}
	return false
}
