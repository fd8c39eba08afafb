package account

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles persists roles and memberships
type Roles interface {
	List(ctx context.Context) ([]*Role, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Role, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	FindByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	RenameTx(ctx context.Context, tx bun.IDB, role *Role, name string) (*Role, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	AssignTx(ctx context.Context, tx bun.IDB, identityID, roleID uuid.UUID) error
	UnassignTx(ctx context.Context, tx bun.IDB, identityID, roleID uuid.UUID) error
	Members(ctx context.Context, roleID uuid.UUID) ([]*Identity, error)
	RolesOf(ctx context.Context, identityID uuid.UUID) ([]*Role, error)
}

type roles struct {
	repo repository.Repository[*Role]
	db   *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "normalized_name"
		},
	})

	return &roles{repo: repo, db: db}
}

func (r *roles) List(ctx context.Context) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	return records, err
}

func (r *roles) FindByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

func (r *roles) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error) {
	record := &Role{}
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

func (r *roles) FindByName(ctx context.Context, name string) (*Role, error) {
	return r.FindByNameTx(ctx, r.db, name)
}

func (r *roles) FindByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	return r.repo.GetByIdentifierTx(ctx, tx, normalizeRoleName(name))
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if _, err := r.FindByNameTx(ctx, tx, name); err == nil {
		return nil, ErrDuplicateRoleName(name)
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	now := time.Now()
	record := &Role{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalizeRoleName(name),
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}

	created, err := r.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrDuplicateRoleName(name)
		}
		return nil, err
	}
	return created, nil
}

func (r *roles) RenameTx(ctx context.Context, tx bun.IDB, role *Role, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	normalized := normalizeRoleName(name)

	if existing, err := r.FindByNameTx(ctx, tx, name); err == nil && existing.ID != role.ID {
		return nil, ErrDuplicateRoleName(name)
	} else if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	now := time.Now()
	record := *role
	record.Name = name
	record.NormalizedName = normalized
	record.UpdatedAt = &now

	updated, err := r.repo.UpdateTx(ctx, tx, &record, repository.UpdateByID(role.ID.String()))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrDuplicateRoleName(name)
		}
		return nil, err
	}
	return updated, nil
}

// DeleteTx removes the role and its memberships
func (r *roles) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*IdentityRole)(nil)).
		Where("role_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "id", id.String())
}

// AssignTx is idempotent
func (r *roles) AssignTx(ctx context.Context, tx bun.IDB, identityID, roleID uuid.UUID) error {
	now := time.Now()
	_, err := tx.NewInsert().
		Model(&IdentityRole{IdentityID: identityID, RoleID: roleID, CreatedAt: &now}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (r *roles) UnassignTx(ctx context.Context, tx bun.IDB, identityID, roleID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*IdentityRole)(nil)).
		Where("identity_id = ?", identityID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	return err
}

func (r *roles) Members(ctx context.Context, roleID uuid.UUID) ([]*Identity, error) {
	var records []*Identity
	err := r.db.NewSelect().
		Model(&records).
		Join(`JOIN "identity_roles" AS "idr" ON "idr"."identity_id" = "idn"."id"`).
		Where(`"idr"."role_id" = ?`, roleID).
		OrderExpr(`"idn"."username" ASC`).
		Scan(ctx)
	return records, err
}

func (r *roles) RolesOf(ctx context.Context, identityID uuid.UUID) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().
		Model(&records).
		Join(`JOIN "identity_roles" AS "idr" ON "idr"."role_id" = "rl"."id"`).
		Where(`"idr"."identity_id" = ?`, identityID).
		OrderExpr(`"rl"."name" ASC`).
		Scan(ctx)
	return records, err
}
