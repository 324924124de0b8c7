package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"eiprobe/db"
	lib "eiprobe/lib/sagemaker"
)

var ErrNotFound = errors.New("endpoint not found in ledger")

func Insert(conn db.Connection, e lib.DeployedEndpoint) error {
	_, err := conn.NamedExec(`
		INSERT INTO deployed_endpoint (
			name,
			model_name,
			endpoint_config_name,
			region,
			instance_type,
			accelerator_type,
			source_bucket,
			created_at,
			deleted_at
		) VALUES (
			:name,
			:model_name,
			:endpoint_config_name,
			:region,
			:instance_type,
			:accelerator_type,
			:source_bucket,
			:created_at,
			:deleted_at
		)
	`, e)
	if err != nil {
		return fmt.Errorf("failed to insert endpoint [%s] in ledger: %w", e.Name, err)
	}
	return nil
}

func Get(conn db.Connection, name string) (lib.DeployedEndpoint, error) {
	var e lib.DeployedEndpoint
	err := conn.Get(&e, `
		SELECT *
		FROM deployed_endpoint
		WHERE name=?
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: [%s]", ErrNotFound, name)
	}
	if err != nil {
		return e, fmt.Errorf("failed to get endpoint [%s] from ledger: %w", name, err)
	}
	return e, nil
}

// MarkDeleted stamps the deletion time of a live endpoint. Marking an already
// deleted endpoint keeps the first timestamp.
func MarkDeleted(conn db.Connection, name string, ts int64) error {
	res, err := conn.Exec(`
		UPDATE deployed_endpoint
		SET deleted_at=?
		WHERE name=? AND deleted_at=0
	`, ts, name)
	if err != nil {
		return fmt.Errorf("failed to mark endpoint [%s] deleted: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = Get(conn, name)
		return err
	}
	return nil
}

// ListLive returns endpoints in region not yet marked deleted that were
// created at or before createdBefore, oldest first.
func ListLive(conn db.Connection, region string, createdBefore int64) ([]lib.DeployedEndpoint, error) {
	var endpoints []lib.DeployedEndpoint
	err := conn.Select(&endpoints, `
		SELECT *
		FROM deployed_endpoint
		WHERE deleted_at=0 AND region=? AND created_at<=?
		ORDER BY created_at
	`, region, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list live endpoints: %w", err)
	}
	return endpoints, nil
}
