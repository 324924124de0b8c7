package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	1: `CREATE TABLE IF NOT EXISTS schema_test (
			name VARCHAR(63) NOT NULL PRIMARY KEY
		);`,
	2: `ALTER TABLE schema_test ADD COLUMN created_at BIGINT NOT NULL DEFAULT 0;`,
}

func open(t *testing.T, path string, defs Schema, fresh bool) Connection {
	r, err := SQLiteConfig{Path: path, Schema: defs, Fresh: fresh}.Materialize()
	require.NoError(t, err)
	return r.(Connection)
}

func TestSyncSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	conn := open(t, path, Schema{1: testSchema[1]}, true)
	v, err := schemaVersion(conn.DB)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	_, err = conn.Exec("INSERT INTO schema_test (name) VALUES (?)", "a")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// reopening applies only the new version and keeps the data
	conn = open(t, path, testSchema, false)
	defer conn.Close()
	v, err = schemaVersion(conn.DB)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	var createdAt int64
	require.NoError(t, conn.Get(&createdAt, "SELECT created_at FROM schema_test WHERE name = ?", "a"))
	assert.Equal(t, int64(0), createdAt)

	// syncing again is a no-op
	require.NoError(t, SyncSchema(conn, testSchema))
	v, err = schemaVersion(conn.DB)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)
}

func TestSyncSchema_Gap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	_, err := SQLiteConfig{Path: path, Schema: Schema{1: testSchema[1], 3: testSchema[2]}, Fresh: true}.Materialize()
	assert.Error(t, err)
}

func TestTeardown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	conn := open(t, path, testSchema, true)
	require.NoError(t, conn.Close())
	assert.FileExists(t, path)
	require.NoError(t, conn.Teardown())
	assert.NoFileExists(t, path)
}
