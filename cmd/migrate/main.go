package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/fulfillment-backend/internal/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
)

type options struct {
	cmd     migrate.Command
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	var cmd string
	flag.StringVar(&cmd, "cmd", string(migrate.CommandUp), "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory on disk; empty uses the set embedded in the binary")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()
	opts.cmd = migrate.Command(cmd)

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	src := migrate.Source{Dir: opts.dir}

	switch opts.cmd {
	case migrate.CommandCreate:
		if opts.name == "" {
			return errors.New("-name is required")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		return migrate.Create(dir, opts.name)
	case migrate.CommandValidate:
		if err := migrate.Validate(src); err != nil {
			return err
		}
		fmt.Printf("migrations in %s are valid\n", src)
		return nil
	case migrate.CommandVersion:
		if opts.version == "" {
			return errors.New("-version is required")
		}
	case migrate.CommandUp, migrate.CommandDown, migrate.CommandStatus:
	default:
		return fmt.Errorf("unknown command %q", opts.cmd)
	}

	proc, err := bootstrap.Start("migrate")
	if err != nil {
		return err
	}
	defer proc.Close()
	logg := proc.Logger
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    proc.Config.App.Env,
		"cmd":    string(opts.cmd),
		"source": src.String(),
	})

	dbClient, err := proc.Database(ctx, false)
	if err != nil {
		return err
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	if err := migrate.Apply(ctx, sqlDB, src, opts.cmd, opts.version); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}
