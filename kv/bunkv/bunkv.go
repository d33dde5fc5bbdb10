// Package bunkv implements the kv.Store contract on top of a bun
// database. Multi-key atomic commits map onto a single transaction, so
// the linearizability the credential core relies on comes straight from
// the underlying database.
package bunkv

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"

	"github.com/emdashjs/go-auth/kv"
)

// Entry is the backing row. One table holds every collection; the path
// column stores the slash-joined key.
type Entry struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kve"`

	Path  string `bun:"path,pk"`
	Value []byte `bun:"value"`
}

// Store is a kv.Store backed by bun. Use an SQLite (sqliteshim) or
// Postgres dialect database; anything with transactional upserts works.
type Store struct {
	db *bun.DB
}

var _ kv.Store = (*Store)(nil)

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the backing table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *Store) Get(ctx context.Context, key kv.Key) ([]byte, bool, error) {
	entry := &Entry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("?TableAlias.path = ?", joinPath(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *Store) List(ctx context.Context, prefix kv.Key) ([]kv.Entry, error) {
	var rows []Entry
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.path LIKE ?", joinPath(prefix)+pathSep+"%").
		Order("path ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]kv.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, kv.Entry{
			Key:   splitPath(row.Path),
			Value: row.Value,
		})
	}
	return entries, nil
}

func (s *Store) Counter(ctx context.Context, key kv.Key) (uint64, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return kv.DecodeCounter(value), nil
}

func (s *Store) Atomic() kv.Atomic {
	return &atomic{store: s}
}

type check struct {
	path   string
	exists bool
}

type op struct {
	path   string
	value  []byte
	sum    int64
	action byte // 's' set, 'd' delete, '+' sum
}

type atomic struct {
	store  *Store
	checks []check
	ops    []op
}

func (a *atomic) Check(key kv.Key, exists bool) kv.Atomic {
	a.checks = append(a.checks, check{path: joinPath(key), exists: exists})
	return a
}

func (a *atomic) Set(key kv.Key, value []byte) kv.Atomic {
	a.ops = append(a.ops, op{path: joinPath(key), value: value, action: 's'})
	return a
}

func (a *atomic) Delete(key kv.Key) kv.Atomic {
	a.ops = append(a.ops, op{path: joinPath(key), action: 'd'})
	return a
}

func (a *atomic) Sum(key kv.Key, delta int64) kv.Atomic {
	a.ops = append(a.ops, op{path: joinPath(key), sum: delta, action: '+'})
	return a
}

// errCheckFailed aborts the transaction without applying any operation;
// Commit translates it into the (false, nil) contract.
var errCheckFailed = errors.New("bunkv: atomic check failed")

func (a *atomic) Commit(ctx context.Context) (bool, error) {
	err := a.store.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, c := range a.checks {
			exists, err := tx.NewSelect().
				Model((*Entry)(nil)).
				Where("?TableAlias.path = ?", c.path).
				Exists(ctx)
			if err != nil {
				return err
			}
			if exists != c.exists {
				return errCheckFailed
			}
		}

		for _, o := range a.ops {
			switch o.action {
			case 's':
				if err := upsert(ctx, tx, o.path, o.value); err != nil {
					return err
				}
			case 'd':
				if _, err := tx.NewDelete().
					Model((*Entry)(nil)).
					Where("path = ?", o.path).
					Exec(ctx); err != nil {
					return err
				}
			case '+':
				entry := &Entry{}
				current := uint64(0)
				err := tx.NewSelect().
					Model(entry).
					Where("?TableAlias.path = ?", o.path).
					Limit(1).
					Scan(ctx)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				if err == nil {
					current = kv.DecodeCounter(entry.Value)
				}
				next := kv.ApplySum(current, o.sum)
				if err := upsert(ctx, tx, o.path, kv.EncodeCounter(next)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, errCheckFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func upsert(ctx context.Context, tx bun.Tx, path string, value []byte) error {
	entry := &Entry{Path: path, Value: value}
	_, err := tx.NewInsert().
		Model(entry).
		On("CONFLICT (path) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

const pathSep = "/"

func joinPath(key kv.Key) string {
	return strings.Join(key, pathSep)
}

func splitPath(path string) kv.Key {
	return kv.Key(strings.Split(path, pathSep))
}
