package harness

import "eiprobe/db"

var Schema db.Schema

func init() {
	// to change the ledger (create table, alter table etc.) add a versioned
	// query here. Numbers should be increasing with no gaps and no repetitions
	Schema = db.Schema{
		1: `CREATE TABLE IF NOT EXISTS deployed_endpoint (
				name VARCHAR(63) NOT NULL PRIMARY KEY,
				model_name VARCHAR(63) NOT NULL,
				endpoint_config_name VARCHAR(63) NOT NULL,
				region VARCHAR(32) NOT NULL,
				instance_type VARCHAR(64) NOT NULL,
				accelerator_type VARCHAR(64) NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				deleted_at BIGINT NOT NULL DEFAULT 0
			);`,
		2: `CREATE INDEX deployed_endpoint_live ON deployed_endpoint (deleted_at, created_at);`,
		3: `ALTER TABLE deployed_endpoint ADD COLUMN source_bucket VARCHAR(63) NOT NULL DEFAULT '';`,
	}
}
