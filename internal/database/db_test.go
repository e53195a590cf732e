package database

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T, profile Profile) *DB {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_db_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := New(Config{Path: tmpPath, Profile: profile, Name: "test"})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
	})
	return db
}

func TestDB_ContextQueries(t *testing.T) {
	db := setupDB(t, ProfileStandard)
	ctx := context.Background()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v INTEGER NOT NULL) STRICT;`))

	_, err := db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)`, "a", 1, "b", 2)
	require.NoError(t, err)

	var v int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, "b").Scan(&v))
	assert.Equal(t, 2, v)

	rows, err := db.QueryContext(ctx, `SELECT k FROM kv ORDER BY k`)
	require.NoError(t, err)
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestDB_MigrateIsIdempotent(t *testing.T) {
	db := setupDB(t, ProfileStandard)

	schema := `CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY) STRICT;`
	require.NoError(t, db.Migrate(schema))
	require.NoError(t, db.Migrate(schema))
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t, ProfileStandard)
	ctx := context.Background()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY) STRICT;`))

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv (k) VALUES (?)`, "committed")
		return err
	})
	require.NoError(t, err)

	var k string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT k FROM kv`).Scan(&k))
	assert.Equal(t, "committed", k)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := setupDB(t, ProfileStandard)
	ctx := context.Background()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY) STRICT;`))

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k) VALUES (?)`, "doomed"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO kv (k) VALUES (?)`, "doomed")
		return err
	})
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := setupDB(t, ProfileStandard)

	assert.NotPanics(t, func() {
		_ = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			panic("midway failure")
		})
	})
}

func TestDB_HealthCheck(t *testing.T) {
	db := setupDB(t, ProfileArchive)

	require.NoError(t, db.HealthCheck(context.Background()))
	assert.Equal(t, "test", db.Name())
	assert.NotEmpty(t, db.Path())
}

func TestDB_WALCheckpoint(t *testing.T) {
	db := setupDB(t, ProfileStandard)
	ctx := context.Background()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY) STRICT;`))
	_, err := db.ExecContext(ctx, `INSERT INTO kv (k) VALUES (?)`, "a")
	require.NoError(t, err)

	require.NoError(t, db.WALCheckpoint(""))
	require.NoError(t, db.WALCheckpoint("PASSIVE"))
}
