package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emdashjs/go-auth"
	"github.com/emdashjs/go-auth/kv"
)

type authFixture struct {
	cfg      *testConfig
	resolver *fakeResolver
	tokens   *auth.TokenStore
	hasher   *auth.Hasher
	auth     *auth.Authorizer
}

func newAuthFixture(t *testing.T, identities ...*auth.Identity) *authFixture {
	t.Helper()
	cfg := newTestConfig()
	f := &authFixture{
		cfg:      cfg,
		resolver: newFakeResolver(identities...),
		hasher:   auth.NewHasher(cfg),
	}
	f.tokens = auth.NewTokenStore(cfg, kv.NewMemory(), auth.NewSigner(cfg, nil))
	f.auth = auth.NewAuthorizer(cfg, f.tokens, f.hasher, f.resolver)
	return f
}

// Fresh install, zero identities, bootstrap enabled: any request passes
// so the operator can create the first account.
func TestAuthorizeBootstrapBypass(t *testing.T) {
	f := newAuthFixture(t)
	f.cfg.bootstrap = true

	result, err := f.auth.Authorize(context.Background(), auth.Carriers{})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionBootstrapAllowed, result.Decision)
}

func TestAuthorizeBootstrapDisabled(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.auth.Authorize(context.Background(), auth.Carriers{})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
	assert.Equal(t, auth.ChallengeBasic, result.Challenge)
}

func TestAuthorizeBootstrapEndsWithFirstIdentity(t *testing.T) {
	f := newAuthFixture(t)
	f.cfg.bootstrap = true
	f.resolver.add(mustIdentity(f.cfg, "alice@example.com", "Sn0wman!Sn0wman!"))

	result, err := f.auth.Authorize(context.Background(), auth.Carriers{})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
}

func TestAuthorizeBasic(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	result, err := f.auth.Authorize(ctx, auth.Carriers{
		BasicEmail:    "alice@example.com",
		BasicPassword: "Sn0wman!Sn0wman!",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAuthenticated, result.Decision)
	require.NotNil(t, result.Identity)
	assert.Equal(t, identity.ID, result.Identity.ID)
	require.NotEmpty(t, result.SessionToken, "Basic success issues a session")

	// The issued session works as a cookie carrier on the next request.
	followUp, err := f.auth.Authorize(ctx, auth.Carriers{SessionToken: result.SessionToken})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAuthenticated, followUp.Decision)
	assert.Equal(t, result.SessionToken, followUp.SessionToken)
}

func TestAuthorizeBasicWrongPassword(t *testing.T) {
	f := newAuthFixture(t, mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!"))

	result, err := f.auth.Authorize(context.Background(), auth.Carriers{
		BasicEmail:    "alice@example.com",
		BasicPassword: "wrong-password",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
	assert.Equal(t, auth.ChallengeBasic, result.Challenge)
}

func TestAuthorizeBasicUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.auth.Authorize(context.Background(), auth.Carriers{
		BasicEmail:    "nobody@example.com",
		BasicPassword: "whatever",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
	assert.Equal(t, auth.ChallengeBasic, result.Challenge)
}

func TestAuthorizeBasicExternalIdentity(t *testing.T) {
	id, err := auth.IdentityID("ext@example.com")
	require.NoError(t, err)
	f := newAuthFixture(t, &auth.Identity{
		ID:       id,
		Email:    "ext@example.com",
		Provider: "github",
		Enabled:  true,
	})

	// External identities hold no credential; Basic always fails.
	result, err := f.auth.Authorize(context.Background(), auth.Carriers{
		BasicEmail:    "ext@example.com",
		BasicPassword: "anything",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
}

func TestAuthorizeDisabledIdentityIsForbidden(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	session, err := f.tokens.CreateSession(ctx, identity.ID)
	require.NoError(t, err)

	identity.Enabled = false

	// Disabled wins over a perfectly valid session, and the verdict is
	// forbidden, not another invitation to retry.
	result, err := f.auth.Authorize(ctx, auth.Carriers{SessionToken: session})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionForbidden, result.Decision)
	assert.Equal(t, auth.ChallengeNone, result.Challenge)
}

func TestAuthorizeStaleSessionFallsThroughToBasic(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	session, err := f.tokens.CreateSession(ctx, identity.ID)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Revoke(ctx, session))

	result, err := f.auth.Authorize(ctx, auth.Carriers{
		SessionToken:  session,
		BasicEmail:    "alice@example.com",
		BasicPassword: "Sn0wman!Sn0wman!",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAuthenticated, result.Decision)
	assert.NotEmpty(t, result.SessionToken)
}

func TestAuthorizeBearer(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	token, err := f.tokens.CreateAccess(ctx, identity.ID, nil, time.Hour)
	require.NoError(t, err)

	result, err := f.auth.Authorize(ctx, auth.Carriers{BearerToken: token})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAuthenticated, result.Decision)
	require.NotNil(t, result.Identity)
	assert.Equal(t, identity.ID, result.Identity.ID)
	assert.Empty(t, result.SessionToken, "Bearer never implicitly creates sessions")
}

func TestAuthorizeBearerRevoked(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	token, err := f.tokens.CreateAccess(ctx, identity.ID, nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.tokens.RevokeAll(ctx, identity.ID))

	result, err := f.auth.Authorize(ctx, auth.Carriers{BearerToken: token})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
	assert.Equal(t, auth.ChallengeBearer, result.Challenge)
}

func TestAuthorizeSessionTokenRejectedAsBearer(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	session, err := f.tokens.CreateSession(ctx, identity.ID)
	require.NoError(t, err)

	// A session token is bound to the cookie channel; presenting it in
	// the Authorization header must not authenticate.
	result, err := f.auth.Authorize(ctx, auth.Carriers{BearerToken: session})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
	assert.Equal(t, auth.ChallengeBearer, result.Challenge)
}

func TestAuthorizeAccessTokenRejectedAsSessionCookie(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	access, err := f.tokens.CreateAccess(ctx, identity.ID, nil, time.Hour)
	require.NoError(t, err)

	result, err := f.auth.Authorize(ctx, auth.Carriers{SessionToken: access})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)

	// The same token on its own channel still works.
	result, err = f.auth.Authorize(ctx, auth.Carriers{BearerToken: access})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionAuthenticated, result.Decision)
}

func TestAuthorizeTamperedSessionToken(t *testing.T) {
	identity := mustIdentity(newTestConfig(), "alice@example.com", "Sn0wman!Sn0wman!")
	f := newAuthFixture(t, identity)
	ctx := context.Background()

	session, err := f.tokens.CreateSession(ctx, identity.ID)
	require.NoError(t, err)

	tampered := []byte(session)
	tampered[len(tampered)/2] ^= 0x01

	result, err := f.auth.Authorize(ctx, auth.Carriers{SessionToken: string(tampered)})
	require.NoError(t, err)
	assert.Equal(t, auth.DecisionNotAuthenticated, result.Decision)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "bootstrap-allowed", auth.DecisionBootstrapAllowed.String())
	assert.Equal(t, "authenticated", auth.DecisionAuthenticated.String())
	assert.Equal(t, "forbidden", auth.DecisionForbidden.String())
	assert.Equal(t, "not-authenticated", auth.DecisionNotAuthenticated.String())
}
