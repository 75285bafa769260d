package auth

import (
	"embed"
	"io/fs"
	"path"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsRoot = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// GetDialectMigrationsFS returns the migration files for one dialect,
// "sqlite" or "postgres", rooted so bun/migrate can discover them.
func GetDialectMigrationsFS(dialect string) (fs.FS, error) {
	return fs.Sub(migrationsFS, path.Join(migrationsRoot, dialect))
}
