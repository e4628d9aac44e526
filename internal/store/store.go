// Package store persists run provenance to PostgreSQL. It is optional: the
// pipeline's JSON index is the canonical output, the database is a queryable
// mirror for multi-run setups.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reidsanders/danbooru-utility/internal/metadata"
)

// Store manages the PostgreSQL connection for run provenance.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// initSchema creates the provenance tables if they don't exist (auto-migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS pipeline_runs (
			id BIGSERIAL PRIMARY KEY,
			dataset_path TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ DEFAULT NOW(),
			files_seen INT NOT NULL,
			artifacts INT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS artifacts (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT REFERENCES pipeline_runs(id),
			record_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			rating TEXT NOT NULL,
			score INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS artifacts_record_id_idx ON artifacts (record_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordRun persists one completed run and its artifact list. Implements
// pipeline.Recorder.
func (s *Store) RecordRun(ctx context.Context, dataset string, started time.Time, filesSeen, produced int, entries []metadata.Record) error {
	var runID int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO pipeline_runs (dataset_path, started_at, files_seen, artifacts)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, dataset, started, filesSeen, produced).Scan(&runID)
	if err != nil {
		return err
	}
	return s.insertArtifacts(ctx, runID, entries)
}

func (s *Store) insertArtifacts(ctx context.Context, runID int64, entries []metadata.Record) error {
	for _, rec := range entries {
		score, err := rec.ScoreInt()
		if err != nil {
			// Entries passed the filter, so the score already parsed once.
			score = 0
		}
		_, err = s.conn.Exec(ctx, `
			INSERT INTO artifacts (run_id, record_id, filename, rating, score)
			VALUES ($1, $2, $3, $4, $5)
		`, runID, rec.ID.String(), rec.Filename, rec.Rating, score)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset drops all provenance rows.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `TRUNCATE artifacts, pipeline_runs RESTART IDENTITY CASCADE`)
	return err
}

// RunCount reports how many runs have been recorded.
func (s *Store) RunCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&n)
	return n, err
}
