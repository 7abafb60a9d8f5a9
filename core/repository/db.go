package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool
type DB struct {
	*sql.DB
}

// NewDB opens and pings a Postgres database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		project TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		config_path TEXT NOT NULL DEFAULT '',
		accepted BOOLEAN,
		distance DOUBLE PRECISION,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_project_created_idx ON jobs (project, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS job_events (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES jobs(id),
		at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		from_status TEXT,
		to_status TEXT NOT NULL,
		reason TEXT NOT NULL,
		meta_json JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS job_artifacts (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES jobs(id),
		type TEXT NOT NULL,
		uri TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		meta_json JSONB NOT NULL DEFAULT '{}'
	)`,
}

// Migrate creates the job history tables if they do not exist
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

func encodeMeta(meta map[string]interface{}) string {
	if meta == nil {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}
