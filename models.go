package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// Provider names the system that vouches for an identity.
type Provider = string

const (
	// ProviderInternal marks identities that authenticate with a local
	// password credential. Every other provider value names an external
	// issuer and carries no credential.
	ProviderInternal Provider = "internal"
)

// Identity is the account record. The ID is deterministic over the
// normalized email, so the same address always resolves to the same row
// regardless of which path created it.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:idn"`

	ID         uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email      string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Name       string         `bun:"name" json:"name,omitempty"`
	Phone      string         `bun:"phone_number" json:"phone_number,omitempty"`
	Provider   Provider       `bun:"provider,notnull" json:"provider,omitempty"`
	Credential string         `bun:"credential" json:"-"`
	Enabled    bool           `bun:"enabled,notnull" json:"enabled"`
	Metadata   map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt  *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt  *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsInternal reports whether the identity holds a local credential.
// External-provider identities have nothing to verify a password
// against, so Basic authentication always fails for them.
func (i *Identity) IsInternal() bool {
	return i.Provider == "" || i.Provider == ProviderInternal
}

// AddMetadata appends information to the metadata attribute.
func (i *Identity) AddMetadata(key string, val any) *Identity {
	if i.Metadata == nil {
		i.Metadata = make(map[string]any)
	}
	i.Metadata[key] = val
	return i
}

// Public returns the identity view safe to embed in token payloads and
// API responses: no credential, no soft-delete bookkeeping.
func (i *Identity) Public() map[string]any {
	return map[string]any{
		"id":       i.ID.String(),
		"email":    i.Email,
		"name":     i.Name,
		"provider": i.Provider,
	}
}

// defaultPhoneRegion resolves national numbers that arrive without a
// country prefix.
const defaultPhoneRegion = "US"

// NormalizePhone canonicalizes a phone number to E.164. Phone is an
// optional profile field, so anything unparseable or invalid normalizes
// to empty rather than failing the record.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
