package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b", "c")
	db, err := Open(filepath.Join(nested, "test.db"))
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpen_InvalidPath(t *testing.T) {
	// Files cannot be created under /proc.
	_, err := Open("/proc/nonexistent/test.db")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	for _, table := range []string{"solves", "tasks", "conversations", "messages"} {
		var name string
		err := db.QueryRow(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := tempDBPath(t)
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.StartSolve(ctx, "solve-1", "Build a todo app"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	s, err := db.GetSolve(ctx, "solve-1")
	require.NoError(t, err)
	assert.Equal(t, "Build a todo app", s.Request)
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC)
	parsed, err := parseTime(formatTime(now))
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))

	assert.Nil(t, nullableTime(nil))
	assert.Equal(t, formatTime(now), nullableTime(&now))
}

func TestPurgeOldSolves(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StartSolve(ctx, "old", "old request"))
	require.NoError(t, db.StartSolve(ctx, "new", "new request"))
	_, err := db.Exec(ctx, "UPDATE solves SET started_at = ? WHERE id = ?", formatTime(time.Now().Add(-48*time.Hour)), "old")
	require.NoError(t, err)
	require.NoError(t, db.SaveTask(ctx, "old", newRootTask("old-root", "old request")))

	n, err := db.PurgeOldSolves(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetSolve(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	tasks, err := db.ListTasks(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = db.GetSolve(ctx, "new")
	assert.NoError(t, err)
}
