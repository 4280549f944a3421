package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sectors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS transfer_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		patient_name VARCHAR(100) NOT NULL,
		patient_history_number VARCHAR(50),
		patient_room VARCHAR(50),
		destination_room VARCHAR(50),
		origin_sector_id TEXT NOT NULL REFERENCES sectors(id),
		destination_sector_id TEXT NOT NULL REFERENCES sectors(id),
		transfer_type_id TEXT NOT NULL REFERENCES transfer_types(id),
		priority TEXT NOT NULL DEFAULT 'MEDIUM' CHECK (priority IN ('LOW','MEDIUM','HIGH','URGENT')),
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','IN_PROGRESS','IN_ADJUDICATION','COMPLETED','CANCELLED')),
		observation TEXT,
		requester_id TEXT,
		transporter_id TEXT,
		transporter_name TEXT,
		requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		accepted_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_status_requested ON transfers (status, requested_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_requested ON transfers (requested_at DESC)`,
	`CREATE TABLE IF NOT EXISTS access_codes (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		sector_id TEXT REFERENCES sectors(id),
		code_hash TEXT NOT NULL,
		label TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		old_values JSONB,
		new_values JSONB,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource, resource_id)`,
	`CREATE TABLE IF NOT EXISTS report_jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL,
		progress INT NOT NULL DEFAULT 0,
		result_url TEXT,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ,
		error_message TEXT
	)`,
}

// DefaultSectors are inserted on first boot so the request form has options.
var DefaultSectors = map[string]string{
	"sec-er":   "Emergency",
	"sec-img":  "Imaging",
	"sec-icu":  "Intensive Care",
	"sec-med":  "Internal Medicine",
	"sec-surg": "Surgery",
	"sec-ped":  "Pediatrics",
}

// DefaultTransferTypes lists the seeded transfer types.
var DefaultTransferTypes = map[string]string{
	"type-bed":   "Bed",
	"type-str":   "Stretcher",
	"type-wheel": "Wheelchair",
}

// Migrate applies the idempotent schema and seeds reference data. Existing
// rows are left untouched.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := seed(ctx, tx, "sectors", DefaultSectors); err != nil {
		return err
	}
	if err := seed(ctx, tx, "transfer_types", DefaultTransferTypes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func seed(ctx context.Context, tx *sqlx.Tx, table string, rows map[string]string) error {
	query := fmt.Sprintf("INSERT INTO %s (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING", table)
	for id, name := range rows {
		if _, err := tx.ExecContext(ctx, query, id, name); err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
	}
	return nil
}
