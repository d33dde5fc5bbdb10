package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emdashjs/go-auth"
	"github.com/emdashjs/go-auth/kv"
)

type passwordChangeFixture struct {
	cfg      *testConfig
	repo     *fakeRepoManager
	hasher   *auth.Hasher
	tokens   *auth.TokenStore
	handler  *auth.ChangePasswordHandler
	identity *auth.Identity
}

func newPasswordChangeFixture(t *testing.T) *passwordChangeFixture {
	t.Helper()
	cfg := newTestConfig()
	f := &passwordChangeFixture{
		cfg:    cfg,
		repo:   newFakeRepoManager(),
		hasher: auth.NewHasher(cfg),
	}
	f.tokens = auth.NewTokenStore(cfg, kv.NewMemory(), auth.NewSigner(cfg, nil))
	f.handler = auth.NewChangePasswordHandler(f.repo, f.hasher, f.tokens)
	f.identity = mustIdentity(cfg, "alice@example.com", "Sn0wman!Sn0wman!")
	f.repo.identities.put(f.identity)
	return f
}

func TestChangePassword(t *testing.T) {
	f := newPasswordChangeFixture(t)

	err := f.handler.Execute(context.Background(), auth.ChangePasswordMessage{
		Identifier:      "alice@example.com",
		CurrentPassword: "Sn0wman!Sn0wman!",
		NewPassword:     "N3w-Secret!N3w-Secret!",
	})
	require.NoError(t, err)

	assert.False(t, f.hasher.Verify("Sn0wman!Sn0wman!", f.identity.Credential))
	assert.True(t, f.hasher.Verify("N3w-Secret!N3w-Secret!", f.identity.Credential))
}

func TestChangePasswordRevokesOtherTokens(t *testing.T) {
	f := newPasswordChangeFixture(t)
	ctx := context.Background()

	session, err := f.tokens.CreateSession(ctx, f.identity.ID)
	require.NoError(t, err)
	access, err := f.tokens.CreateAccess(ctx, f.identity.ID, nil, auth.DefaultAccessTTL)
	require.NoError(t, err)

	err = f.handler.Execute(ctx, auth.ChangePasswordMessage{
		Identifier:      f.identity.ID.String(),
		CurrentPassword: "Sn0wman!Sn0wman!",
		NewPassword:     "N3w-Secret!N3w-Secret!",
		CurrentSession:  session,
	})
	require.NoError(t, err)

	// The session named in the message survives; everything else dies.
	_, err = f.tokens.Authenticate(ctx, session, f.identity.ID)
	assert.NoError(t, err)
	_, err = f.tokens.Authenticate(ctx, access, f.identity.ID)
	assert.Error(t, err)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newPasswordChangeFixture(t)

	err := f.handler.Execute(context.Background(), auth.ChangePasswordMessage{
		Identifier:      "alice@example.com",
		CurrentPassword: "wrong-password",
		NewPassword:     "N3w-Secret!N3w-Secret!",
	})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestChangePasswordUnknownIdentity(t *testing.T) {
	f := newPasswordChangeFixture(t)

	// Unknown identifiers read as a credential failure, never as a
	// user-enumeration oracle.
	err := f.handler.Execute(context.Background(), auth.ChangePasswordMessage{
		Identifier:      "nobody@example.com",
		CurrentPassword: "Sn0wman!Sn0wman!",
		NewPassword:     "N3w-Secret!N3w-Secret!",
	})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestChangePasswordExternalIdentity(t *testing.T) {
	f := newPasswordChangeFixture(t)
	id, err := auth.IdentityID("ext@example.com")
	require.NoError(t, err)
	f.repo.identities.put(&auth.Identity{
		ID:       id,
		Email:    "ext@example.com",
		Provider: "github",
		Enabled:  true,
	})

	err = f.handler.Execute(context.Background(), auth.ChangePasswordMessage{
		Identifier:      "ext@example.com",
		CurrentPassword: "anything",
		NewPassword:     "N3w-Secret!N3w-Secret!",
	})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestChangePasswordWeakNewPassword(t *testing.T) {
	f := newPasswordChangeFixture(t)

	err := f.handler.Execute(context.Background(), auth.ChangePasswordMessage{
		Identifier:      "alice@example.com",
		CurrentPassword: "Sn0wman!Sn0wman!",
		NewPassword:     "weak",
	})
	require.ErrorIs(t, err, auth.ErrPasswordStrength)

	// Credential untouched on rejection.
	assert.True(t, f.hasher.Verify("Sn0wman!Sn0wman!", f.identity.Credential))
}
