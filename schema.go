package account

import (
	"context"
	"io/fs"
	"path"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// MigrationsRoot is the directory of the embedded migrations, with one
// subdirectory per dialect
const MigrationsRoot = "data/sql/migrations"

const migrationSplit = "--bun:split"

// Models returns the bun models backing the package tables
func Models() []any {
	return []any{
		(*Identity)(nil),
		(*Role)(nil),
		(*IdentityRole)(nil),
		(*AccountToken)(nil),
	}
}

// Migrate applies the embedded up migrations for the dialect of db. The
// statements are idempotent so it is safe to call on every start. Services
// should prefer a migrator that records applied versions over the same
// files, Migrate serves embedded and in-memory databases.
func Migrate(ctx context.Context, db bun.IDB) error {
	dir, err := migrationsDir(db.Dialect().Name())
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migrations").
			WithMetadata(map[string]any{"dir": dir})
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		raw, err := fs.ReadFile(migrationsFS, path.Join(dir, entry.Name()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migration").
				WithMetadata(map[string]any{"file": entry.Name()})
		}

		for _, stmt := range splitStatements(string(raw)) {
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migration").
					WithMetadata(map[string]any{"file": entry.Name()})
			}
		}
	}

	return nil
}

func migrationsDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return path.Join(MigrationsRoot, "sqlite"), nil
	case dialect.PG:
		return path.Join(MigrationsRoot, "postgres"), nil
	default:
		return "", goerrors.New("unsupported dialect", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"dialect": name.String()})
	}
}

func splitStatements(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, migrationSplit) {
		if stmt := strings.TrimSpace(chunk); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
