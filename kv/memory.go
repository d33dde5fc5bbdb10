package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// keySep joins path segments into the flat map key. Unit separator keeps
// segment boundaries unambiguous for prefix scans.
const keySep = "\x1f"

// Memory is an in-process Store used by tests and single-node setups.
// All commits run under one mutex, which trivially satisfies the
// linearizable multi-key commit contract.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[flatten(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) List(_ context.Context, prefix Key) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flat := flatten(prefix) + keySep
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, flat) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{
			Key:   unflatten(k),
			Value: append([]byte(nil), m.data[k]...),
		})
	}
	return entries, nil
}

func (m *Memory) Counter(_ context.Context, key Key) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeCounter(m.data[flatten(key)]), nil
}

func (m *Memory) Atomic() Atomic {
	return &memoryAtomic{store: m}
}

type memoryCheck struct {
	key    string
	exists bool
}

type memoryOp struct {
	key    string
	value  []byte
	sum    int64
	action byte // 's' set, 'd' delete, '+' sum
}

type memoryAtomic struct {
	store  *Memory
	checks []memoryCheck
	ops    []memoryOp
}

func (a *memoryAtomic) Check(key Key, exists bool) Atomic {
	a.checks = append(a.checks, memoryCheck{key: flatten(key), exists: exists})
	return a
}

func (a *memoryAtomic) Set(key Key, value []byte) Atomic {
	a.ops = append(a.ops, memoryOp{key: flatten(key), value: append([]byte(nil), value...), action: 's'})
	return a
}

func (a *memoryAtomic) Delete(key Key) Atomic {
	a.ops = append(a.ops, memoryOp{key: flatten(key), action: 'd'})
	return a
}

func (a *memoryAtomic) Sum(key Key, delta int64) Atomic {
	a.ops = append(a.ops, memoryOp{key: flatten(key), sum: delta, action: '+'})
	return a
}

func (a *memoryAtomic) Commit(_ context.Context) (bool, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	for _, check := range a.checks {
		if _, ok := a.store.data[check.key]; ok != check.exists {
			return false, nil
		}
	}

	for _, op := range a.ops {
		switch op.action {
		case 's':
			a.store.data[op.key] = op.value
		case 'd':
			delete(a.store.data, op.key)
		case '+':
			next := ApplySum(DecodeCounter(a.store.data[op.key]), op.sum)
			a.store.data[op.key] = EncodeCounter(next)
		}
	}
	return true, nil
}

func flatten(key Key) string {
	return strings.Join(key, keySep)
}

func unflatten(flat string) Key {
	return Key(strings.Split(flat, keySep))
}
