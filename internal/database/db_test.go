package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_AppliesProfile(t *testing.T) {
	db := newDB(t, NameSnapshots, ProfileLedger)

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.Conn().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, ProfileLedger, db.Profile())
	assert.Equal(t, NameSnapshots, db.Name())
}

func TestMigrate_Idempotent(t *testing.T) {
	for _, name := range []string{NameSnapshots, NameInsights} {
		t.Run(name, func(t *testing.T) {
			db := newDB(t, name, ProfileStandard)
			require.NoError(t, db.Migrate())
			require.NoError(t, db.Migrate())

			var count int
			err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&count)
			require.NoError(t, err)
			assert.Greater(t, count, 0)
		})
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newDB(t, "scratch", ProfileCache)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newDB(t, "scratch", ProfileStandard)
	_, err := db.Conn().Exec(`CREATE TABLE items (name TEXT)`)
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec(`INSERT INTO items (name) VALUES ('b')`)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec(`INSERT INTO items (name) VALUES ('c')`)
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})

	t.Run("nil connection", func(t *testing.T) {
		assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
	})
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newDB(t, NameInsights, ProfileStandard)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(t.Context()))
	require.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}
