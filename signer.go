package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"sync/atomic"
)

// Signer produces and verifies HMAC-SHA512 signatures over encoded
// claims. The signing key is derived once from the installation secret
// and cached for the life of the process; concurrent first use may
// derive it more than once, which is harmless because derivation is a
// pure function of the secret.
type Signer struct {
	secret []byte
	key    atomic.Pointer[[]byte]
}

// NewSigner resolves the signing secret from cfg. When no installation
// secret is configured it falls back to the installation UUID, an
// insecure-by-default state that is logged loudly.
func NewSigner(cfg Config, logger Logger) *Signer {
	if logger == nil {
		logger = defLogger{}
	}
	secret, insecure := installationSecret(cfg)
	if insecure {
		logger.Warn("no installation secret configured; signing and peppering fall back to the installation UUID. Set a secret before exposing this deployment.")
	}
	return &Signer{secret: secret}
}

// Sign returns the 64-byte HMAC-SHA512 signature over claimBytes.
func (s *Signer) Sign(claimBytes []byte) []byte {
	mac := hmac.New(sha512.New, s.signingKey())
	mac.Write(claimBytes)
	return mac.Sum(nil)
}

// Verify recomputes the signature and compares in constant time.
func (s *Signer) Verify(claimBytes, signature []byte) bool {
	return hmac.Equal(s.Sign(claimBytes), signature)
}

// signingKey returns the cached derived key, deriving it on first use.
// Races before the cell is populated are safe: every derivation yields
// the same bytes and the first stored pointer simply wins.
func (s *Signer) signingKey() []byte {
	if key := s.key.Load(); key != nil {
		return *key
	}
	derived := sha512.Sum512(s.secret)
	key := derived[:]
	s.key.CompareAndSwap(nil, &key)
	return *s.key.Load()
}

// installationSecret resolves the key material shared by Signer and
// Hasher. The second return is true when the insecure UUID fallback is
// in effect.
func installationSecret(cfg Config) ([]byte, bool) {
	if secret := cfg.GetInstallationSecret(); secret != "" {
		return []byte(secret), false
	}
	return []byte(cfg.GetInstallationID()), true
}
