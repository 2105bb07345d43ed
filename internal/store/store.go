// Package store keeps evaluation reports in PostgreSQL so a candidate's
// history can be looked up by source hash.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/signalnine/stratgate/internal/result"
)

var ErrNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	run_id      TEXT NOT NULL,
	candidate   TEXT NOT NULL,
	grp         TEXT NOT NULL DEFAULT '',
	source_hash TEXT NOT NULL,
	seed        BIGINT NOT NULL,
	robustness  DOUBLE PRECISION NOT NULL,
	quality     DOUBLE PRECISION NOT NULL,
	overall     DOUBLE PRECISION NOT NULL,
	grade       TEXT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	report      JSONB NOT NULL,
	PRIMARY KEY (run_id, source_hash)
);
CREATE INDEX IF NOT EXISTS evaluations_hash_idx ON evaluations (source_hash, finished_at DESC);
`

type Store struct {
	db *sqlx.DB
}

// Summary is one stored evaluation without its full report.
type Summary struct {
	RunID      string    `db:"run_id" json:"run_id"`
	Candidate  string    `db:"candidate" json:"candidate"`
	Group      string    `db:"grp" json:"group"`
	SourceHash string    `db:"source_hash" json:"source_hash"`
	Seed       int64     `db:"seed" json:"seed"`
	Robustness float64   `db:"robustness" json:"robustness"`
	Quality    float64   `db:"quality" json:"quality"`
	Overall    float64   `db:"overall" json:"overall"`
	Grade      string    `db:"grade" json:"grade"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}
	return nil
}

func (s *Store) SaveReport(ctx context.Context, r *result.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (run_id, candidate, grp, source_hash, seed, robustness, quality, overall, grade, finished_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, source_hash) DO UPDATE SET report = EXCLUDED.report
	`, r.RunID, r.Candidate, r.Group, r.SourceHash, r.Seed, r.Robustness, r.Quality, r.Overall, r.Grade, r.FinishedAt, data)
	if err != nil {
		return fmt.Errorf("saving report %s: %w", r.Candidate, err)
	}
	return nil
}

// LatestByHash returns the most recent report for a source hash.
func (s *Store) LatestByHash(ctx context.Context, hash string) (*result.Report, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `
		SELECT report FROM evaluations
		WHERE source_hash = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", hash, err)
	}
	var r result.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing stored report: %w", err)
	}
	return &r, nil
}

// History lists a candidate's evaluations, newest first.
func (s *Store) History(ctx context.Context, candidate string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Summary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, candidate, grp, source_hash, seed, robustness, quality, overall, grade, finished_at
		FROM evaluations
		WHERE candidate = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`, candidate, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", candidate, err)
	}
	return rows, nil
}
