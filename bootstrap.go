package account

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// AdminSeed describes the administrative identity ensured at startup
type AdminSeed struct {
	Username  string
	Email     string
	Password  string
	FullName  string
	Phone     string
	UseHashid bool
}

// DefaultAdminSeed returns the well known bootstrap administrator
func DefaultAdminSeed() AdminSeed {
	return AdminSeed{
		Username: "admin",
		Email:    "admin@mcvz.com",
		Password: "Admin_123",
		FullName: "Administrator",
	}
}

// EnsureAdmin makes sure the seed identity exists, is confirmed and is a
// member of the Admin role. Running it again changes nothing.
func EnsureAdmin(ctx context.Context, repo RepositoryManager, seed AdminSeed, logger Logger) (*Identity, error) {
	logger = resolveLogger(logger)

	if strings.TrimSpace(seed.Email) == "" || seed.Password == "" {
		return nil, ErrInvalidRequest("admin seed requires an email and a password", "email", "password")
	}

	if seed.Username == "" {
		seed.Username = strings.Split(seed.Email, "@")[0]
	}

	var (
		admin   *Identity
		created bool
	)

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := repo.Identities().FindByEmailTx(ctx, tx, seed.Email)
		switch {
		case err == nil:
			admin = existing
		case repository.IsRecordNotFound(err):
			identity := &Identity{
				Username: seed.Username,
				Email:    seed.Email,
				FullName: seed.FullName,
				Phone:    seed.Phone,
			}
			if seed.UseHashid {
				if id, err := hashid.NewUUID(normalizeEmail(seed.Email)); err == nil {
					identity.ID = id
				}
			}
			if admin, err = repo.Identities().CreateTx(ctx, tx, identity, seed.Password); err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		if !admin.EmailConfirmed {
			if err := repo.Identities().ConfirmEmailTx(ctx, tx, admin.ID); err != nil {
				return err
			}
			admin.EmailConfirmed = true
		}

		role, err := repo.Roles().FindByNameTx(ctx, tx, AdminRoleName)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return err
			}
			if role, err = repo.Roles().CreateTx(ctx, tx, AdminRoleName); err != nil {
				return err
			}
		}

		return repo.Roles().AssignTx(ctx, tx, admin.ID, role.ID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && Kind(richErr) != "" {
			return nil, richErr
		}
		return nil, storeError(err, "failed to seed admin account")
	}

	if created {
		logger.Info("admin account created", "username", admin.Username, "email", admin.Email)
	} else {
		logger.Debug("admin account present", "username", admin.Username)
	}

	return admin, nil
}
