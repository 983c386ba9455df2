package migrate

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
)

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

// Create writes a new timestamped SQL migration into dir. Names are
// lowercased and reduced to [a-z0-9_] so the file passes Validate.
func Create(dir, name string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	goose.SetBaseFS(nil)
	goose.SetSequential(false)
	if err := goose.Create(nil, dir, slug, "sql"); err != nil {
		return fmt.Errorf("goose create %s: %w", slug, err)
	}
	return nil
}
