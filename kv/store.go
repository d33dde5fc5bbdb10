// Package kv defines the atomic key-value store boundary the credential
// core persists into. The store is consumed as an opaque linearizable
// key-value store with atomic multi-key commits; every mutation that
// must stay consistent (token issuance, revocation, counter updates) is
// expressed as a single commit, never as separate read-then-write steps.
package kv

import (
	"context"
	"encoding/binary"
	"strings"
)

// Key is a hierarchical key path, collection first.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// Equal reports whether two keys are identical.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether k starts with prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Entry is a stored key-value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the persistence contract. Implementations must provide
// linearizable multi-key atomic commits via Atomic.
type Store interface {
	// Get returns the value for key; the bool reports presence.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// List returns all entries whose key starts with prefix.
	List(ctx context.Context, prefix Key) ([]Entry, error)
	// Counter reads an unsigned counter value; absent counters are zero.
	Counter(ctx context.Context, key Key) (uint64, error)
	// Atomic begins a multi-key atomic operation.
	Atomic() Atomic
}

// Atomic batches checks and mutations into one commit. Commit returns
// false without applying anything when a Check fails; errors are
// reserved for store failures. Counter mutations via Sum are floored at
// zero so interleaved decrements can never drive a counter negative.
type Atomic interface {
	// Check asserts key presence (exists=true) or absence (exists=false).
	Check(key Key, exists bool) Atomic
	Set(key Key, value []byte) Atomic
	Delete(key Key) Atomic
	Sum(key Key, delta int64) Atomic
	Commit(ctx context.Context) (bool, error)
}

// EncodeCounter serializes a counter value for storage.
func EncodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeCounter deserializes a counter value; malformed or absent
// values read as zero.
func DecodeCounter(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

// ApplySum adjusts a counter value by delta, floored at zero.
func ApplySum(current uint64, delta int64) uint64 {
	if delta >= 0 {
		return current + uint64(delta)
	}
	dec := uint64(-delta)
	if dec >= current {
		return 0
	}
	return current - dec
}
