// Package migrate applies the goose SQL migrations that define the
// fulfillment schema. Migrations ship embedded in every binary; a directory
// on disk can be used instead while authoring new ones.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location of the embedded migrations, relative to
// the repository root.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

type Command string

const (
	CommandUp       Command = "up"
	CommandDown     Command = "down"
	CommandStatus   Command = "status"
	CommandVersion  Command = "version"
	CommandCreate   Command = "create"
	CommandValidate Command = "validate"
)

// Source selects the migration set. The zero value reads the embedded set.
type Source struct {
	Dir string
}

func (s Source) files() (fs.FS, string) {
	if s.Dir == "" {
		return embedded, embeddedDir
	}
	return nil, s.Dir
}

func (s Source) String() string {
	if s.Dir == "" {
		return "embedded"
	}
	return s.Dir
}

func (s Source) configure() (string, error) {
	fsys, dir := s.files()
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return dir, nil
}

// Apply runs cmd against db. target is the YYYYMMDDHHMMSS version for
// CommandVersion and ignored otherwise.
func Apply(ctx context.Context, db *sql.DB, src Source, cmd Command, target string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	dir, err := src.configure()
	if err != nil {
		return err
	}

	switch cmd {
	case CommandUp, CommandDown, CommandStatus:
		if err := goose.RunContext(ctx, string(cmd), db, dir); err != nil {
			return fmt.Errorf("goose %s: %w", cmd, err)
		}
		return nil
	case CommandVersion:
		return migrateTo(ctx, db, dir, target)
	default:
		return fmt.Errorf("command %q does not run against the database", cmd)
	}
}

func migrateTo(ctx context.Context, db *sql.DB, dir, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != 14 {
		return fmt.Errorf("invalid target version %q (expected YYYYMMDDHHMMSS)", target)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, dir, version)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

// Versions reports the schema version recorded in db and the newest version
// in src.
func Versions(ctx context.Context, db *sql.DB, src Source) (current, latest int64, err error) {
	dir, err := src.configure()
	if err != nil {
		return 0, 0, err
	}
	current, err = goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, 0, fmt.Errorf("read schema version: %w", err)
	}
	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return 0, 0, fmt.Errorf("collect migrations: %w", err)
	}
	last, err := migrations.Last()
	if err != nil {
		return current, 0, nil
	}
	return current, last.Version, nil
}
