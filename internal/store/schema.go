package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS ledger`,
	`CREATE TABLE IF NOT EXISTS ledger.journal (
		seq         BIGINT PRIMARY KEY,
		kind        TEXT NOT NULL,
		account     TEXT NOT NULL,
		payload     JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger.product_snapshot (
		product_id BIGINT PRIMARY KEY,
		seller     TEXT NOT NULL,
		buyer      TEXT,
		title      TEXT NOT NULL DEFAULT '',
		category   TEXT NOT NULL DEFAULT '',
		price      NUMERIC(78,0) NOT NULL,
		status     TEXT NOT NULL,
		seq        BIGINT NOT NULL,
		as_of      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger.balance_snapshot (
		account TEXT PRIMARY KEY,
		pending NUMERIC(78,0) NOT NULL,
		rewards NUMERIC(78,0) NOT NULL,
		seq     BIGINT NOT NULL,
		as_of   TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the ledger schema if it does not exist.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
