package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the tables of a run. Each takes the schema name
// for every %[1]s.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s`,
	`CREATE TABLE IF NOT EXISTS %[1]s.report_runs (
		id uuid PRIMARY KEY,
		generated_at timestamptz NOT NULL,
		source text,
		total_rows integer NOT NULL,
		invalid_rows integer NOT NULL,
		scheduled integer NOT NULL,
		attended integer NOT NULL,
		no_shows integer NOT NULL,
		no_show_rate numeric(8,6) NOT NULL,
		estimated_loss numeric(14,2) NOT NULL,
		model_status text NOT NULL,
		auc numeric(8,6),
		moderate_threshold numeric(4,2) NOT NULL,
		high_threshold numeric(4,2) NOT NULL,
		high_count integer NOT NULL,
		moderate_count integer NOT NULL,
		low_count integer NOT NULL,
		manual_count integer NOT NULL,
		run_tag text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.report_clusters (
		id uuid PRIMARY KEY,
		run_id uuid NOT NULL REFERENCES %[1]s.report_runs(id) ON DELETE CASCADE,
		rank integer NOT NULL,
		area text NOT NULL,
		channel text NOT NULL,
		scheduled integer NOT NULL,
		no_shows integer NOT NULL,
		no_show_rate numeric(8,6) NOT NULL,
		mean_lead_time_days numeric(10,2) NOT NULL,
		estimated_loss numeric(14,2) NOT NULL,
		priority_score numeric(16,2) NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.report_queue (
		id uuid PRIMARY KEY,
		run_id uuid NOT NULL REFERENCES %[1]s.report_runs(id) ON DELETE CASCADE,
		position integer NOT NULL,
		appointment_id bigint NOT NULL,
		age integer NOT NULL,
		channel text NOT NULL,
		area text,
		lead_time_days integer NOT NULL,
		risk numeric(8,6) NOT NULL,
		tier text NOT NULL,
		action text NOT NULL,
		execution text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_report_clusters_run_idx ON %[1]s.report_clusters (run_id)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_report_queue_run_idx ON %[1]s.report_queue (run_id)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_report_queue_tier_idx ON %[1]s.report_queue (tier)`,
}

func schemaSQL(schema string) []string {
	statements := make([]string, len(schemaStatements))
	for i, statement := range schemaStatements {
		statements[i] = fmt.Sprintf(statement, schema)
	}
	return statements
}

func ensureSchema(ctx context.Context, db *sql.DB, schema string) error {
	for _, statement := range schemaSQL(schema) {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
