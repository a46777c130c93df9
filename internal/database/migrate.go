package database

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending goose migrations embedded in this binary.
// Spec §6 says "Migrations applied externally" for operators who manage
// schema themselves; Migrate exists for the common case (dev, CI, single-
// node deployments) where the binary owns its own schema.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return pipelineerrors.FailedTo("set migration dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return pipelineerrors.FailedTo("apply migrations", err)
	}
	return nil
}
