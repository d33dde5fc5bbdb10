package auth_test

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emdashjs/go-auth"
)

func testClaim(t *testing.T) *auth.Claim {
	t.Helper()
	return &auth.Claim{
		Subject: uuid.MustParse("a2ead46e-0392-4b0c-92ed-3b7a4cbf4f27"),
		Kind:    auth.KindSession,
		Created: time.UnixMilli(1735689600000),
		Expires: time.UnixMilli(1736294400000),
		Payload: []byte(`{"token_id":"a6c9fb94-23a1-4f46-8276-4c89191536a5"}`),
	}
}

func TestClaimRoundTrip(t *testing.T) {
	claim := testClaim(t)

	encoded, err := auth.EncodeClaim(claim)
	require.NoError(t, err)
	require.Len(t, encoded, auth.ClaimSize)

	decoded, err := auth.DecodeClaim(encoded)
	require.NoError(t, err)

	assert.Equal(t, claim.Subject, decoded.Subject)
	assert.Equal(t, claim.Kind, decoded.Kind)
	assert.Equal(t, claim.Created.UnixMilli(), decoded.Created.UnixMilli())
	assert.Equal(t, claim.Expires.UnixMilli(), decoded.Expires.UnixMilli())
	assert.Equal(t, claim.Payload, decoded.Payload)
}

// The byte layout is a wire-format contract; these offsets must never
// drift.
func TestClaimByteOffsets(t *testing.T) {
	claim := testClaim(t)

	encoded, err := auth.EncodeClaim(claim)
	require.NoError(t, err)

	assert.Equal(t, claim.Subject[:], encoded[0:16], "subject at [0,16)")
	assert.Equal(t, uint16(auth.KindSession), binary.BigEndian.Uint16(encoded[16:18]), "kind at [16,18)")
	assert.Equal(t, uint64(1735689600000), binary.BigEndian.Uint64(encoded[18:26]), "created at [18,26)")
	assert.Equal(t, uint64(1736294400000), binary.BigEndian.Uint64(encoded[26:34]), "expires at [26,34)")
	assert.Equal(t, uint16(len(claim.Payload)), binary.BigEndian.Uint16(encoded[34:36]), "payload length at [34,36)")
	assert.Equal(t, claim.Payload, encoded[36:36+len(claim.Payload)], "payload at [36,...)")
}

func TestClaimEncodedSizeIsFixed(t *testing.T) {
	small := testClaim(t)
	small.Payload = []byte(`{}`)
	large := testClaim(t)

	encodedSmall, err := auth.EncodeClaim(small)
	require.NoError(t, err)
	encodedLarge, err := auth.EncodeClaim(large)
	require.NoError(t, err)

	assert.Len(t, encodedSmall, auth.ClaimSize)
	assert.Len(t, encodedLarge, auth.ClaimSize)
}

func TestClaimPaddingIsRandom(t *testing.T) {
	claim := testClaim(t)

	first, err := auth.EncodeClaim(claim)
	require.NoError(t, err)
	second, err := auth.EncodeClaim(claim)
	require.NoError(t, err)

	payloadEnd := 36 + len(claim.Payload)
	assert.Equal(t, first[:payloadEnd], second[:payloadEnd])
	assert.NotEqual(t, first[payloadEnd:], second[payloadEnd:])
}

func TestEncodeClaimRejectsOversizedPayload(t *testing.T) {
	claim := testClaim(t)
	claim.Payload = make([]byte, auth.PayloadCap+1)

	_, err := auth.EncodeClaim(claim)
	assert.Error(t, err)
}

func TestDecodeClaimRejections(t *testing.T) {
	valid, err := auth.EncodeClaim(testClaim(t))
	require.NoError(t, err)

	t.Run("wrong size", func(t *testing.T) {
		_, err := auth.DecodeClaim(valid[:auth.ClaimSize-1])
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("unknown kind", func(t *testing.T) {
		buf := append([]byte(nil), valid...)
		binary.BigEndian.PutUint16(buf[16:18], 7)
		_, err := auth.DecodeClaim(buf)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("payload length over cap", func(t *testing.T) {
		buf := append([]byte(nil), valid...)
		binary.BigEndian.PutUint16(buf[34:36], auth.PayloadCap+1)
		_, err := auth.DecodeClaim(buf)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	claimBytes, err := auth.EncodeClaim(testClaim(t))
	require.NoError(t, err)
	signature := make([]byte, auth.SignatureSize)
	for i := range signature {
		signature[i] = byte(i)
	}

	token, err := auth.EncodeToken(signature, claimBytes)
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, auth.TokenSize)

	gotSig, gotClaim, err := auth.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, signature, gotSig)
	assert.Equal(t, claimBytes, gotClaim)
}

func TestDecodeTokenRejections(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not base64url", token: "@@@@"},
		{name: "wrong length", token: base64.RawURLEncoding.EncodeToString([]byte("short"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := auth.DecodeToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrTokenMalformed)
		})
	}
}

func TestTokenKind(t *testing.T) {
	assert.Equal(t, "access", auth.KindAccess.String())
	assert.Equal(t, "session", auth.KindSession.String())
	assert.Equal(t, "session", auth.KindSession.Collection())
	assert.Equal(t, "unknown", auth.TokenKind(9).String())
}
