package session

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// EnsureCredentialSchema applies the embedded migrations in order. Safe
// to run on every start, the statements are idempotent.
func EnsureCredentialSchema(ctx context.Context, db *bun.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "data/sql/migrations")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read embedded migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		stmt, err := fs.ReadFile(migrationsFS, "data/sql/migrations/"+name)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migration").
				WithMetadata(map[string]any{"migration": name})
		}

		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migration").
				WithMetadata(map[string]any{"migration": name})
		}
	}

	return nil
}
