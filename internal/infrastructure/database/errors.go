package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMissingDown is returned by MigrateDown when the latest migration has no down file.
	ErrMissingDown = errors.New("database: migration has no down SQL")

	// ErrUnknownMigration is returned when an applied version has no file in the source FS.
	ErrUnknownMigration = errors.New("database: applied migration not found")
)
