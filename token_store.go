package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/emdashjs/go-auth/kv"
)

// DefaultAccessTTL applies when an access token is minted without an
// explicit lifetime. Access tokens are long lived API credentials; the
// session TTL policy does not apply to them.
const DefaultAccessTTL = 30 * 24 * time.Hour

const (
	collectionCount = "count"

	payloadTokenID = "token_id"
	payloadUserID  = "user_id"
)

// TokenRecord is the stored row behind an issued token. The token string
// is persisted verbatim so presentation can be matched byte for byte; a
// re-issued or revoked token fails that match even when its signature
// still verifies.
type TokenRecord struct {
	ID      uuid.UUID `json:"id"`
	Subject uuid.UUID `json:"subject"`
	Kind    TokenKind `json:"kind"`
	Token   string    `json:"token"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.Expires)
}

// PublicToken is the enumeration view of a record: no token string, no
// subject, safe to return from management endpoints.
type PublicToken struct {
	ID      uuid.UUID `json:"id"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

// TokenStore issues, validates, and revokes signed tokens backed by an
// atomic key-value store. Every record mutation and its collection
// counter ride the same atomic commit, so counters stay consistent with
// the records they summarize even under interleaved writers.
type TokenStore struct {
	store      kv.Store
	signer     *Signer
	sessionTTL time.Duration
	logger     Logger
	now        func() time.Time
}

type TokenStoreOption func(*TokenStore)

func WithTokenStoreLogger(logger Logger) TokenStoreOption {
	return func(t *TokenStore) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTokenStoreClock overrides the time source.
func WithTokenStoreClock(now func() time.Time) TokenStoreOption {
	return func(t *TokenStore) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokenStore(cfg Config, store kv.Store, signer *Signer, opts ...TokenStoreOption) *TokenStore {
	t := &TokenStore{
		store:      store,
		signer:     signer,
		sessionTTL: ParseTTL(cfg.GetSessionTTL()),
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// CreateSession returns a session token for subject. Issuance is
// idempotent within the TTL: when a live session record already exists
// its token is returned unchanged, so repeated Basic logins do not fan
// out sessions. Stale records found along the way are swept in the same
// commit that stores the replacement.
func (t *TokenStore) CreateSession(ctx context.Context, subject uuid.UUID) (string, error) {
	entries, err := t.store.List(ctx, scopedPrefix(KindSession, subject))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to list session records")
	}

	now := t.now()
	stale := make([]*TokenRecord, 0, len(entries))
	for _, entry := range entries {
		record := &TokenRecord{}
		if err := json.Unmarshal(entry.Value, record); err != nil {
			continue
		}
		if !record.Expired(now) {
			return record.Token, nil
		}
		stale = append(stale, record)
	}

	record, value, err := t.mint(subject, KindSession, now, t.sessionTTL, nil)
	if err != nil {
		return "", err
	}

	// Each stale record is swept in its own guarded commit: the
	// decrement only lands when this call is the one that deleted the
	// record, so a revoke racing the List cannot double-count.
	for _, old := range stale {
		if err := t.revokeRecord(ctx, KindSession, subject, old.ID); err != nil {
			t.logger.Warn("failed to sweep stale session record %s: %v", old.ID, err)
		}
	}

	primary, scoped := recordKeys(KindSession, subject, record.ID)
	ok, err := t.store.Atomic().
		Check(primary, false).
		Set(primary, value).
		Set(scoped, value).
		Sum(counterKey(KindSession), 1).
		Commit(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to store session record")
	}
	if !ok {
		return "", errors.New("session token id collision", errors.CategoryInternal)
	}
	return record.Token, nil
}

// CreateAccess mints a fresh access token for subject with the given
// payload attributes. The token id and subject id are injected into the
// payload so a presented token can be resolved back to its record.
func (t *TokenStore) CreateAccess(ctx context.Context, subject uuid.UUID, attributes map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}

	record, value, err := t.mint(subject, KindAccess, t.now(), ttl, attributes)
	if err != nil {
		return "", err
	}

	primary, scoped := recordKeys(KindAccess, subject, record.ID)
	ok, err := t.store.Atomic().
		Check(primary, false).
		Set(primary, value).
		Set(scoped, value).
		Sum(counterKey(KindAccess), 1).
		Commit(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to store access record")
	}
	if !ok {
		return "", errors.New("access token id collision", errors.CategoryInternal)
	}
	return record.Token, nil
}

// Authenticate validates a presented token string: decode, verify the
// signature, check the validity window, and confirm the backing record
// still exists and still holds this exact token. An expired token is
// revoked on sight so the record store self-cleans. When expectedSubject
// is non-nil the claim must name it.
func (t *TokenStore) Authenticate(ctx context.Context, token string, expectedSubject uuid.UUID) (*Claim, error) {
	signature, claimBytes, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if !t.signer.Verify(claimBytes, signature) {
		return nil, ErrTokenMalformed
	}
	claim, err := DecodeClaim(claimBytes)
	if err != nil {
		return nil, err
	}
	tokenID, err := claimTokenID(claim)
	if err != nil {
		return nil, err
	}

	if claim.Expired(t.now()) {
		if err := t.revokeRecord(ctx, claim.Kind, claim.Subject, tokenID); err != nil {
			t.logger.Warn("failed to sweep expired %s record %s: %v", claim.Kind, tokenID, err)
		}
		return nil, ErrTokenExpired
	}

	primary, _ := recordKeys(claim.Kind, claim.Subject, tokenID)
	value, found, err := t.store.Get(ctx, primary)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read token record")
	}
	if !found {
		return nil, ErrNotAuthenticated
	}

	record := &TokenRecord{}
	if err := json.Unmarshal(value, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "corrupt token record")
	}
	if record.Token != token || record.Subject != claim.Subject {
		return nil, ErrNotAuthenticated
	}
	if expectedSubject != uuid.Nil && claim.Subject != expectedSubject {
		return nil, ErrNotAuthenticated
	}
	return claim, nil
}

// Revoke deletes the record behind a presented token. The signature must
// verify; revoking an already revoked token is a no-op.
func (t *TokenStore) Revoke(ctx context.Context, token string) error {
	signature, claimBytes, err := DecodeToken(token)
	if err != nil {
		return err
	}
	if !t.signer.Verify(claimBytes, signature) {
		return ErrTokenMalformed
	}
	claim, err := DecodeClaim(claimBytes)
	if err != nil {
		return err
	}
	tokenID, err := claimTokenID(claim)
	if err != nil {
		return err
	}
	return t.revokeRecord(ctx, claim.Kind, claim.Subject, tokenID)
}

// RevokeAll deletes every session and access record issued to subject,
// skipping any whose token string appears in except (typically the
// caller's current session). Each record is deleted in its own guarded
// commit so a record another writer already revoked is skipped instead
// of decrementing the counter a second time.
func (t *TokenStore) RevokeAll(ctx context.Context, subject uuid.UUID, except ...string) error {
	keep := make(map[string]bool, len(except))
	for _, token := range except {
		keep[token] = true
	}

	for _, kind := range []TokenKind{KindSession, KindAccess} {
		entries, err := t.store.List(ctx, scopedPrefix(kind, subject))
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to list token records")
		}
		for _, entry := range entries {
			record := &TokenRecord{}
			if err := json.Unmarshal(entry.Value, record); err != nil {
				continue
			}
			if keep[record.Token] {
				continue
			}
			if err := t.revokeRecord(ctx, kind, subject, record.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count reports the live record count for a token kind.
func (t *TokenStore) Count(ctx context.Context, kind TokenKind) (uint64, error) {
	return t.store.Counter(ctx, counterKey(kind))
}

// ListAccess enumerates the access tokens issued to subject, newest
// last, as public views.
func (t *TokenStore) ListAccess(ctx context.Context, subject uuid.UUID) ([]PublicToken, error) {
	entries, err := t.store.List(ctx, scopedPrefix(KindAccess, subject))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list access records")
	}

	tokens := make([]PublicToken, 0, len(entries))
	for _, entry := range entries {
		record := &TokenRecord{}
		if err := json.Unmarshal(entry.Value, record); err != nil {
			continue
		}
		tokens = append(tokens, PublicToken{
			ID:      record.ID,
			Created: record.Created,
			Expires: record.Expires,
		})
	}
	return tokens, nil
}

// mint builds the claim, signs it, and returns the record with its
// serialized store value. Nothing is persisted here.
func (t *TokenStore) mint(subject uuid.UUID, kind TokenKind, now time.Time, ttl time.Duration, attributes map[string]any) (*TokenRecord, []byte, error) {
	tokenID := uuid.New()

	payload := make(map[string]any, len(attributes)+2)
	for k, v := range attributes {
		payload[k] = v
	}
	payload[payloadTokenID] = tokenID.String()
	payload[payloadUserID] = subject.String()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CategoryBadInput, "failed to encode token payload")
	}
	if len(payloadBytes) > PayloadCap {
		return nil, nil, errors.New("token payload exceeds cap", errors.CategoryBadInput)
	}

	claim := &Claim{
		Subject: subject,
		Kind:    kind,
		Created: now,
		Expires: now.Add(ttl),
		Payload: payloadBytes,
	}
	claimBytes, err := EncodeClaim(claim)
	if err != nil {
		return nil, nil, err
	}
	token, err := EncodeToken(t.signer.Sign(claimBytes), claimBytes)
	if err != nil {
		return nil, nil, err
	}

	record := &TokenRecord{
		ID:      tokenID,
		Subject: subject,
		Kind:    kind,
		Token:   token,
		Created: claim.Created,
		Expires: claim.Expires,
	}
	value, err := json.Marshal(record)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode token record")
	}
	return record, value, nil
}

func (t *TokenStore) revokeRecord(ctx context.Context, kind TokenKind, subject, tokenID uuid.UUID) error {
	primary, scoped := recordKeys(kind, subject, tokenID)
	_, err := t.store.Atomic().
		Check(primary, true).
		Delete(primary).
		Delete(scoped).
		Sum(counterKey(kind), -1).
		Commit(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete token record")
	}
	return nil
}

// claimTokenID extracts the record id the mint step injected into the
// payload. A verified claim without one was not minted here.
func claimTokenID(claim *Claim) (uuid.UUID, error) {
	var payload map[string]any
	if err := json.Unmarshal(claim.Payload, &payload); err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	raw, _ := payload[payloadTokenID].(string)
	tokenID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	return tokenID, nil
}

func recordKeys(kind TokenKind, subject, tokenID uuid.UUID) (primary, scoped kv.Key) {
	collection := kind.Collection()
	primary = kv.Key{collection, tokenID.String()}
	scoped = kv.Key{collection, subject.String(), tokenID.String()}
	return primary, scoped
}

func scopedPrefix(kind TokenKind, subject uuid.UUID) kv.Key {
	return kv.Key{kind.Collection(), subject.String()}
}

func counterKey(kind TokenKind) kv.Key {
	return kv.Key{collectionCount, kind.Collection()}
}
