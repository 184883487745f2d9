package fundkrawler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS theme_records (
	store_path text        NOT NULL,
	code       text        NOT NULL,
	name       text        NOT NULL,
	yields     jsonb       NOT NULL,
	written_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (store_path, code)
)`

const postgresInsert = `
INSERT INTO theme_records (store_path, code, name, yields)
VALUES ($1, $2, $3, $4::jsonb)
ON CONFLICT (store_path, code) DO UPDATE
SET name = EXCLUDED.name, yields = EXCLUDED.yields, written_at = now()`

// PostgresStore keeps one row per theme, grouped by store path.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err = pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create theme_records: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Write replaces every row of path with records in a single transaction.
func (s *PostgresStore) Write(ctx context.Context, path string, records []*ThemeRecord) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM theme_records WHERE store_path = $1`, path)
	for _, record := range records {
		yields, err := json.Marshal(record.Yields)
		if err != nil {
			return fmt.Errorf("marshal yields of %s: %w", record.Code, err)
		}
		batch.Queue(postgresInsert, path, record.Code, record.Name, string(yields))
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write snapshot %s: %w", path, err)
		}
		return nil
	})
}

// Read returns the rows stored for path ordered by code.
func (s *PostgresStore) Read(ctx context.Context, path string) ([]*ThemeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, yields::text FROM theme_records WHERE store_path = $1 ORDER BY code`, path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	defer rows.Close()

	var records []*ThemeRecord
	for rows.Next() {
		var (
			record ThemeRecord
			yields string
		)
		if err = rows.Scan(&record.Code, &record.Name, &yields); err != nil {
			return nil, err
		}
		if err = json.Unmarshal([]byte(yields), &record.Yields); err != nil {
			return nil, fmt.Errorf("unmarshal yields of %s: %w", record.Code, err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
