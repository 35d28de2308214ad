package migrations

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUp_IsIdempotent(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, Up(db))
	require.NoError(t, Up(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"users", "credentials", "streaks", "day_buckets"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestVersion_FreshDatabase(t *testing.T) {
	version, dirty, err := Version(openMemory(t))
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
