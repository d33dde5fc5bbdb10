package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the environment surface consumed by this package
type Config interface {
	// GetInstallationSecret returns the operator provided secret used for
	// signing and peppering. Empty means the installation UUID fallback
	// is in effect, which is insecure and logged loudly.
	GetInstallationSecret() string
	GetInstallationID() string
	GetSessionTTL() string
	GetPasswordAlgorithm() string
	GetPasswordLevel() string
	GetFirstUserBootstrap() bool
	GetCookieName() string
	GetRealm() string
}

// IdentityResolver is the slice of the account-management subsystem this
// package reads: resolve a subject to its Identity and answer the
// bootstrap question "are there zero identities yet".
type IdentityResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (*Identity, error)
	Count(ctx context.Context) (int, error)
}

// PasswordVerifier verifies a plaintext against a stored credential.
// Verify never fails with an error; any structural problem is a mismatch.
type PasswordVerifier interface {
	Verify(password, storedCredential string) bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
