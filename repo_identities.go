package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetIdentityCredentialSQL = `UPDATE "identities" AS "idn"
SET
	"credential" = ?,
	"provider" = 'internal'
WHERE
	"idn"."deleted_at" IS NULL
AND (
	"idn"."id" = ?
) RETURNING *;`

// Identities is the account repository. It doubles as the
// IdentityResolver the authorizer consumes.
type Identities interface {
	Register(ctx context.Context, identity *Identity) (*Identity, error)
	RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)
	GetOrRegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Identity, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Identity, error)

	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Identity, error)
	SetEnabledTx(ctx context.Context, tx bun.IDB, id uuid.UUID, enabled bool) (*Identity, error)
	SetCredential(ctx context.Context, id uuid.UUID, credential string) error
	SetCredentialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, credential string) error

	Resolve(ctx context.Context, id uuid.UUID) (*Identity, error)
	Count(ctx context.Context) (int, error)
}

type identities struct {
	repository.Repository[*Identity]
	db *bun.DB
}

var (
	_ Identities       = (*identities)(nil)
	_ IdentityResolver = (*identities)(nil)
)

func NewIdentitiesRepository(db *bun.DB) Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &identities{
		Repository: repo,
		db:         db,
	}
}

func (a *identities) Register(ctx context.Context, identity *Identity) (*Identity, error) {
	return a.RegisterTx(ctx, a.db, identity)
}

func (a *identities) RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	prepareIdentityDefaults(identity)
	return a.Repository.CreateTx(ctx, tx, identity)
}

func (a *identities) GetOrRegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	identifier := identity.Email
	if identity.ID != uuid.Nil {
		identifier = identity.ID.String()
	}

	record, err := a.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return record, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.RegisterTx(ctx, tx, identity)
}

func (a *identities) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return a.Repository.GetByID(ctx, id.String())
}

func (a *identities) GetByIdentifier(ctx context.Context, identifier string) (*Identity, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier)
}

func (a *identities) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Identity, error) {
	options := resolveIdentityIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &Identity{}
		err := tx.NewSelect().Model(record).
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *identities) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Identity, error) {
	return a.SetEnabledTx(ctx, a.db, id, enabled)
}

func (a *identities) SetEnabledTx(ctx context.Context, tx bun.IDB, id uuid.UUID, enabled bool) (*Identity, error) {
	// NOTE: the ORM update skips false booleans as zero values, so flip
	// the flag with raw SQL.
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET "enabled" = ?
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, enabled, id).Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.Repository.GetByID(ctx, id.String())
}

func (a *identities) SetCredential(ctx context.Context, id uuid.UUID, credential string) error {
	return a.SetCredentialTx(ctx, a.db, id, credential)
}

func (a *identities) SetCredentialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, credential string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetIdentityCredentialSQL, credential, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// Resolve is the IdentityResolver surface: GetByID with the not-found
// case mapped to the package error kind.
func (a *identities) Resolve(ctx context.Context, id uuid.UUID) (*Identity, error) {
	record, err := a.GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *identities) Count(ctx context.Context) (int, error) {
	return a.db.NewSelect().
		Model((*Identity)(nil)).
		Where("?TableAlias.deleted_at IS NULL").
		Count(ctx)
}

func prepareIdentityDefaults(record *Identity) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)
	record.Phone = NormalizePhone(record.Phone)

	if record.Provider == "" {
		record.Provider = ProviderInternal
	}

	if record.ID == uuid.Nil {
		if id, err := IdentityID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}
}

type identifierOption struct {
	column string
	value  string
}

// resolveIdentityIdentifier maps an opaque identifier to lookup
// columns. Emails resolve through the deterministic id derivation first
// so renamed rows still match, then fall back to the email column.
func resolveIdentityIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		if id, err := IdentityID(trimmed); err == nil {
			options = append(options, identifierOption{
				column: "id",
				value:  id.String(),
			})
		}
		options = append(options, identifierOption{
			column: "email",
			value:  NormalizeEmail(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
