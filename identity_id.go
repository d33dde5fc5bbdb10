package auth

import (
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// NormalizeEmail canonicalizes an address before any comparison or id
// derivation. Normalization is deliberately minimal: trim and
// lower-case, nothing provider specific.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityID derives the deterministic identity id for an email address.
// Every email-to-id path in the package goes through this single
// function so the two spellings can never drift apart.
func IdentityID(email string) (uuid.UUID, error) {
	return hashid.NewUUID(NormalizeEmail(email))
}
