// Package database persists runs and raw records in PostgreSQL. It is an
// optional sink next to the CSV store; the pipeline runs fine without it.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it,
// keeping the store testable without a live database.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store writes run summaries and raw records.
//
// Expected schema:
//
//	CREATE TABLE runs (
//	    id UUID PRIMARY KEY,
//	    started_at TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL,
//	    total INT NOT NULL,
//	    succeeded INT NOT NULL,
//	    fetch_failures INT NOT NULL,
//	    parse_failures INT NOT NULL,
//	    canceled BOOL NOT NULL
//	);
//	CREATE TABLE raw_records (
//	    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    run_id UUID NOT NULL REFERENCES runs(id),
//	    country_name TEXT NOT NULL,
//	    url TEXT NOT NULL,
//	    fetched_at TIMESTAMPTZ NOT NULL,
//	    fields JSONB NOT NULL
//	);
type Store struct {
	db     DB
	logger *zap.Logger
}

// Connect opens a pool against the DSN and pings it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStore(pool, logger), nil
}

// NewStore wraps an existing connection (or mock).
func NewStore(db DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// SaveRaw persists the run summary followed by every record, implementing
// pipeline.RawStore.
func (s *Store) SaveRaw(ctx context.Context, records []pipeline.RawRecord, summary pipeline.Summary) error {
	if err := s.SaveRun(ctx, summary); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := s.SaveRecord(ctx, summary.RunID, rec); err != nil {
			return err
		}
	}
	s.logger.Info("run persisted to postgres",
		zap.String("run_id", summary.RunID),
		zap.Int("records", len(records)),
	)
	return nil
}

// SaveRun inserts one row into runs.
func (s *Store) SaveRun(ctx context.Context, summary pipeline.Summary) error {
	const query = `
		INSERT INTO runs (id, started_at, finished_at, total, succeeded, fetch_failures, parse_failures, canceled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.Total,
		summary.Succeeded,
		summary.FetchFails,
		summary.ParseFails,
		summary.Canceled,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	return nil
}

// SaveRecord inserts one raw record, storing the schema-less field mapping
// as JSONB, and returns the generated row id.
func (s *Store) SaveRecord(ctx context.Context, runID string, rec pipeline.RawRecord) (string, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}

	const query = `
		INSERT INTO raw_records (run_id, country_name, url, fetched_at, fields)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id string
	err = s.db.QueryRow(ctx, query,
		runID,
		rec.CountryName,
		rec.Target.URL,
		rec.FetchedAt,
		fields,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert record for %s: %w", rec.Target.URL, err)
	}
	return id, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.db.Close()
}

var _ pipeline.RawStore = (*Store)(nil)
