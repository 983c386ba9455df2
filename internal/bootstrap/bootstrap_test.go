package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

func TestStartBuildsConfiguredProcess(t *testing.T) {
	t.Setenv(config.EnvAppEnv, "test")
	t.Setenv(config.EnvPort, "8080")
	t.Setenv(config.EnvDBDSN, "file::memory:")
	t.Setenv(config.EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(config.EnvJWTSecret, "secret")
	t.Setenv(config.EnvJWTIssuer, "fulfillment")
	t.Setenv(config.EnvJWTExpMins, "15")

	proc, err := Start("worker")
	require.NoError(t, err)
	assert.Equal(t, "worker", proc.Name)
	assert.Equal(t, "test", proc.Config.App.Env)
	assert.NotNil(t, proc.Logger)
	assert.NoError(t, proc.Close())
}

func TestStartFailsWithoutRequiredConfig(t *testing.T) {
	for _, key := range []string{config.EnvAppEnv, config.EnvJWTSecret} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	_, err := Start("worker")
	assert.Error(t, err)
}

func TestCloseRunsNewestFirstAndJoinsFailures(t *testing.T) {
	proc := &Process{Name: "api", Logger: logger.New(logger.Options{Output: io.Discard})}
	var order []string
	closer := func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}
	proc.onClose("database", closer("database", errors.New("db busy")))
	proc.onClose("redis", closer("redis", nil))
	proc.onClose("broker", closer("broker", errors.New("flush timeout")))

	err := proc.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"broker", "redis", "database"}, order)
	assert.Contains(t, err.Error(), "close broker: flush timeout")
	assert.Contains(t, err.Error(), "close database: db busy")

	order = nil
	assert.NoError(t, proc.Close(), "second close is a no-op")
	assert.Empty(t, order)
}

func TestSignalContextCarriesFields(t *testing.T) {
	proc := &Process{
		Name:   "api",
		Config: &config.Config{App: config.AppConfig{Env: "staging"}},
		Logger: logger.New(logger.Options{Output: io.Discard}),
	}
	ctx, stop := proc.SignalContext(map[string]any{"addr": ":8080"})
	defer stop()
	require.NoError(t, ctx.Err())

	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
