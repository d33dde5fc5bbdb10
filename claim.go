package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenKind is the claim's token-kind discriminant.
type TokenKind uint16

const (
	KindAccess  TokenKind = 0
	KindSession TokenKind = 1
)

func (k TokenKind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Collection returns the key-value collection name for the kind.
func (k TokenKind) Collection() string {
	return k.String()
}

// Claim byte layout. The encoded size is fixed regardless of payload
// content: random padding absorbs the slack, so external observers
// cannot fingerprint tokens by length. Changing any of these values is a
// breaking wire-format change.
const (
	ClaimSize     = 448
	SignatureSize = 64
	TokenSize     = SignatureSize + ClaimSize
	PayloadCap    = 320

	claimSubjectOffset = 0
	claimKindOffset    = 16
	claimCreatedOffset = 18
	claimExpiresOffset = 26
	claimPayloadLenOff = 34
	claimPayloadOffset = 36
)

// Claim is the signed payload embedded in every token.
type Claim struct {
	Subject uuid.UUID
	Kind    TokenKind
	Created time.Time
	Expires time.Time
	Payload []byte
}

// Expired reports whether the claim's validity window has elapsed.
func (c *Claim) Expired(now time.Time) bool {
	return !now.Before(c.Expires)
}

// EncodeClaim packs the claim into its fixed 448-byte frame:
// subject(16) kind(2) created(8) expires(8) payloadLen(2) payload(<=320)
// followed by cryptographically random padding up to the fixed size.
// Timestamps are big-endian Unix milliseconds.
func EncodeClaim(c *Claim) ([]byte, error) {
	if len(c.Payload) > PayloadCap {
		return nil, errors.New("claim payload exceeds cap", errors.CategoryBadInput)
	}

	buf := make([]byte, ClaimSize)
	copy(buf[claimSubjectOffset:], c.Subject[:])
	binary.BigEndian.PutUint16(buf[claimKindOffset:], uint16(c.Kind))
	binary.BigEndian.PutUint64(buf[claimCreatedOffset:], uint64(c.Created.UnixMilli()))
	binary.BigEndian.PutUint64(buf[claimExpiresOffset:], uint64(c.Expires.UnixMilli()))
	binary.BigEndian.PutUint16(buf[claimPayloadLenOff:], uint16(len(c.Payload)))
	copy(buf[claimPayloadOffset:], c.Payload)

	if _, err := rand.Read(buf[claimPayloadOffset+len(c.Payload):]); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read claim padding")
	}
	return buf, nil
}

// DecodeClaim unpacks a fixed-size claim frame. It validates structure
// only; signature verification is the caller's job and is mandatory
// before any decoded field is trusted.
func DecodeClaim(buf []byte) (*Claim, error) {
	if len(buf) != ClaimSize {
		return nil, ErrTokenMalformed
	}
	kind := TokenKind(binary.BigEndian.Uint16(buf[claimKindOffset:]))
	if kind != KindAccess && kind != KindSession {
		return nil, ErrTokenMalformed
	}
	payloadLen := int(binary.BigEndian.Uint16(buf[claimPayloadLenOff:]))
	if payloadLen > PayloadCap {
		return nil, ErrTokenMalformed
	}

	c := &Claim{
		Kind:    kind,
		Created: time.UnixMilli(int64(binary.BigEndian.Uint64(buf[claimCreatedOffset:]))),
		Expires: time.UnixMilli(int64(binary.BigEndian.Uint64(buf[claimExpiresOffset:]))),
		Payload: append([]byte(nil), buf[claimPayloadOffset:claimPayloadOffset+payloadLen]...),
	}
	copy(c.Subject[:], buf[claimSubjectOffset:claimSubjectOffset+16])
	return c, nil
}

// EncodeToken builds the externally visible string:
// base64url(signature(64) || claim(448)), unpadded.
func EncodeToken(signature, claimBytes []byte) (string, error) {
	if len(signature) != SignatureSize || len(claimBytes) != ClaimSize {
		return "", errors.New("token frame has wrong size", errors.CategoryBadInput)
	}
	frame := make([]byte, 0, TokenSize)
	frame = append(frame, signature...)
	frame = append(frame, claimBytes...)
	return base64.RawURLEncoding.EncodeToString(frame), nil
}

// DecodeToken splits a token string into its signature and claim frame.
func DecodeToken(token string) (signature, claimBytes []byte, err error) {
	frame, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(frame) != TokenSize {
		return nil, nil, ErrTokenMalformed
	}
	return frame[:SignatureSize], frame[SignatureSize:], nil
}
