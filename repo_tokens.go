package account

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens is the purpose token ledger
type Tokens interface {
	InsertTx(ctx context.Context, tx bun.IDB, token *AccountToken) (*AccountToken, error)
	FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*AccountToken, error)
	SupersedeTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type tokens struct {
	repo repository.Repository[*AccountToken]
	db   *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	repo := repository.NewRepository[*AccountToken](db, repository.ModelHandlers[*AccountToken]{
		NewRecord: func() *AccountToken { return &AccountToken{} },
		GetID: func(t *AccountToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AccountToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &tokens{repo: repo, db: db}
}

func (t *tokens) InsertTx(ctx context.Context, tx bun.IDB, token *AccountToken) (*AccountToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	return t.repo.CreateTx(ctx, tx, token)
}

func (t *tokens) FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*AccountToken, error) {
	record := &AccountToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

// SupersedeTx marks every unconsumed token for identity and purpose as used
func (t *tokens) SupersedeTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID, purpose TokenPurpose, at time.Time) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*AccountToken)(nil)).
		Set("consumed_at = ?", at).
		Where("identity_id = ?", identityID).
		Where("purpose = ?", purpose).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConsumeTx reports false when the token was already consumed, so two
// concurrent consumers can never both succeed.
func (t *tokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*AccountToken)(nil)).
		Set("consumed_at = ?", at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// PurgeExpired deletes ledger rows that expired before the given time
func (t *tokens) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := t.db.NewDelete().
		Model((*AccountToken)(nil)).
		Where("expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
