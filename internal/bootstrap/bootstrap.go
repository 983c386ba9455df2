// Package bootstrap holds the startup sequence shared by every binary:
// environment, config, logger, and the backing connections each process
// opens, closed in reverse order on exit.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/pkg/broker"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads .env when present, then config, and builds the configured
// logger for the named process.
func Start(name string) (*Process, error) {
	bootLog := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}, nil
}

// Database connects and, when checkSchema is set, verifies or applies
// pending migrations through migrate.Prepare.
func (p *Process) Database(ctx context.Context, checkSchema bool) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	p.onClose("database", client.Close)
	if checkSchema {
		if err := migrate.Prepare(ctx, p.Config, p.Logger, client); err != nil {
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	p.onClose("redis", client.Close)
	return client, nil
}

func (p *Process) Broker(ctx context.Context) (broker.Publisher, error) {
	publisher, err := broker.New(ctx, p.Config, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	p.onClose("broker", publisher.Close)
	return publisher, nil
}

func (p *Process) onClose(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, close: fn})
}

// Close releases connections newest first and reports every failure.
func (p *Process) Close() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if cerr := c.close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	p.closers = nil
	return err
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the process's
// base log fields.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{"env": p.Config.App.Env}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}

// Exit logs err when non-nil, closes connections and terminates with the
// matching status.
func (p *Process) Exit(ctx context.Context, err error) {
	code := 0
	if err != nil {
		p.Logger.Error(ctx, p.Name+".failed", err)
		code = 1
	}
	if cerr := p.Close(); cerr != nil {
		p.Logger.Error(ctx, p.Name+".close_failed", cerr)
	}
	os.Exit(code)
}
