package auth_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/emdashjs/go-auth"
)

type testConfig struct {
	secret     string
	installID  string
	sessionTTL string
	algorithm  string
	level      string
	bootstrap  bool
	cookieName string
	realm      string
}

func newTestConfig() *testConfig {
	return &testConfig{
		secret:     "test-installation-secret",
		installID:  "0b38dd24-b00d-4174-b8e4-10b4a2bbd7d3",
		sessionTTL: "7d",
		algorithm:  "pbkdf2-sha512",
		level:      "LOW",
	}
}

func (c *testConfig) GetInstallationSecret() string { return c.secret }
func (c *testConfig) GetInstallationID() string     { return c.installID }
func (c *testConfig) GetSessionTTL() string         { return c.sessionTTL }
func (c *testConfig) GetPasswordAlgorithm() string  { return c.algorithm }
func (c *testConfig) GetPasswordLevel() string      { return c.level }
func (c *testConfig) GetFirstUserBootstrap() bool   { return c.bootstrap }
func (c *testConfig) GetCookieName() string         { return c.cookieName }
func (c *testConfig) GetRealm() string              { return c.realm }

type testLogger struct {
	mu       sync.Mutex
	debugs   []string
	infos    []string
	warnings []string
	errors   []string
}

func (l *testLogger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *testLogger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *testLogger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *testLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *testLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

// fakeResolver is an in-memory IdentityResolver.
type fakeResolver struct {
	mu         sync.Mutex
	identities map[uuid.UUID]*auth.Identity
}

func newFakeResolver(identities ...*auth.Identity) *fakeResolver {
	r := &fakeResolver{identities: map[uuid.UUID]*auth.Identity{}}
	for _, identity := range identities {
		r.identities[identity.ID] = identity
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, id uuid.UUID) (*auth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	return identity, nil
}

func (r *fakeResolver) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities), nil
}

func (r *fakeResolver) add(identity *auth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.ID] = identity
}

// mustIdentity builds an internal identity with a hashed credential.
func mustIdentity(cfg auth.Config, email, password string) *auth.Identity {
	id, err := auth.IdentityID(email)
	if err != nil {
		panic(err)
	}
	credential, err := auth.NewHasher(cfg).Hash(password)
	if err != nil {
		panic(err)
	}
	return &auth.Identity{
		ID:         id,
		Email:      email,
		Provider:   auth.ProviderInternal,
		Credential: credential,
		Enabled:    true,
	}
}
