package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `-- +goose Up
-- +goose StatementBegin
CREATE TABLE t (id int);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
DROP TABLE t;
-- +goose StatementEnd
`

func TestCheckAnnotations(t *testing.T) {
	assert.NoError(t, checkAnnotations(wellFormed))
	assert.ErrorContains(t, checkAnnotations("-- +goose Down\n"), "Up")
	assert.ErrorContains(t, checkAnnotations("-- +goose Up\n"), "Down")
	assert.ErrorContains(t, checkAnnotations("-- +goose Down\n-- +goose Up\n"), "before")
	assert.ErrorContains(t, checkAnnotations("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n"), "StatementEnd")
}

func TestValidateRejectsBadFiles(t *testing.T) {
	write := func(t *testing.T, dir, name string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(wellFormed), 0o644))
	}

	t.Run("name", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "2026_orders.sql")
		assert.ErrorContains(t, Validate(Source{Dir: dir}), "YYYYMMDDHHMMSS")
	})

	t.Run("duplicate version", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "20260301090000_orders.sql")
		write(t, dir, "20260301090000_refunds.sql")
		assert.ErrorContains(t, Validate(Source{Dir: dir}), "already used")
	})

	t.Run("ignores other files", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "README.md")
		assert.NoError(t, Validate(Source{Dir: dir}))
	})
}
