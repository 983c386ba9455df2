package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCursor("not-base64!")
	assert.ErrorIs(t, err, errMalformedCursor)

	_, err = ParseCursor(EncodeCursor(Cursor{CreatedAt: in.CreatedAt}))
	assert.ErrorIs(t, err, errMalformedCursor, "cursor without id")
}

func TestCursorIsURLSafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		encoded := EncodeCursor(Cursor{CreatedAt: time.Now().Add(time.Duration(i) * time.Hour), ID: uuid.New()})
		assert.Equal(t, url.QueryEscape(encoded), encoded)
	}
}

type pagedRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

func TestScopesBuildKeysetQuery(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	cursor := &Cursor{CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ID: uuid.New()}
	sql := conn.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []pagedRow
		return tx.Scopes(Before(cursor), Newest(LimitWithBuffer(10))).Find(&rows)
	})
	assert.Contains(t, sql, "(created_at, id) <")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, sql, "LIMIT 11")

	sql = conn.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []pagedRow
		return tx.Scopes(Before(nil), Newest(5)).Find(&rows)
	})
	assert.NotContains(t, sql, "created_at, id) <")
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestTrim(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	now := time.Now().UTC()
	cursorOf := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: now, ID: id} }

	page, next := Trim(ids, 2, cursorOf)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)
	decoded, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], decoded.ID)

	page, next = Trim(ids[:2], 2, cursorOf)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
