package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS review_sessions (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		dir             TEXT NOT NULL,
		frame_count     INT NOT NULL DEFAULT 0,
		lots            JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_review_sessions_dir ON review_sessions(dir);`,
	`CREATE TABLE IF NOT EXISTS frame_labels (
		session_id      UUID NOT NULL REFERENCES review_sessions(id) ON DELETE CASCADE,
		frame_id        TEXT NOT NULL,
		lot             TEXT NOT NULL,
		status          INT NOT NULL,
		is_miss_in      BOOLEAN NOT NULL DEFAULT FALSE,
		is_miss_out     BOOLEAN NOT NULL DEFAULT FALSE,
		is_gt_unknown   BOOLEAN NOT NULL DEFAULT FALSE,
		is_first        BOOLEAN NOT NULL DEFAULT FALSE,
		stop_frame_id   TEXT,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_id, frame_id, lot)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_frame_labels_status ON frame_labels(status);`,
	`CREATE TABLE IF NOT EXISTS eval_reports (
		id              BIGSERIAL PRIMARY KEY,
		session_id      UUID NOT NULL REFERENCES review_sessions(id) ON DELETE CASCADE,
		counters_all    JSONB NOT NULL,
		counters_first  JSONB NOT NULL,
		report          JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_eval_reports_session_created ON eval_reports(session_id, created_at DESC);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
