package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema maps a version to the statement that brings the database from the
// previous version to it. Versions start at 1 and have no gaps.
type Schema map[uint32]string

type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func initSchemaVersion(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INT NOT NULL
		)`)
	return err
}

// schemaVersion returns the version of the last schema statement applied, 0
// when none has been.
func schemaVersion(q rowQuerier) (uint32, error) {
	var v sql.NullInt32
	if err := q.QueryRow("SELECT version FROM schema_version").Scan(&v); err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return uint32(v.Int32), nil
}

func setVersion(tx *sql.Tx, v uint32) error {
	stmt := "UPDATE schema_version SET version = ?"
	if v == 1 {
		stmt = "INSERT INTO schema_version VALUES (?)"
	}
	_, err := tx.Exec(stmt, v)
	return err
}

// applySchema executes the statement of version defv and bumps the recorded
// version in one transaction, unless another process got there first.
func applySchema(db *sqlx.DB, defv uint32, def string) error {
	tx, err := db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	// no-op once committed
	defer tx.Rollback()

	v, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	if v >= defv {
		return tx.Commit()
	}
	if defv-v > 1 {
		return fmt.Errorf("found schema version %d while applying version %d: was a version skipped?", v, defv)
	}
	if _, err := tx.Exec(def); err != nil {
		return fmt.Errorf("failed to apply schema version %d: %w", defv, err)
	}
	if err := setVersion(tx, defv); err != nil {
		return err
	}
	return tx.Commit()
}

// SyncSchema applies, in order, every versioned statement of defs that the
// database has not seen yet.
func SyncSchema(conn Connection, defs Schema) error {
	if err := initSchemaVersion(conn.DB); err != nil {
		return err
	}
	curr, err := schemaVersion(conn.DB)
	if err != nil {
		return err
	}
	for i := curr + 1; i <= uint32(len(defs)); i++ {
		def, ok := defs[i]
		if !ok {
			return fmt.Errorf("schema has no version %d", i)
		}
		if err := applySchema(conn.DB, i, def); err != nil {
			return err
		}
	}
	return nil
}
