package selection

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

// selectionsSchema creates the backing table when it does not exist yet.
const selectionsSchema = `
CREATE TABLE IF NOT EXISTS selections (
    id               BIGSERIAL PRIMARY KEY,
    medicine_name    TEXT        NOT NULL,
    selected_variant TEXT        NOT NULL,
    quantity         INTEGER     NOT NULL CHECK (quantity > 0),
    unit             TEXT        NOT NULL DEFAULT '',
    selected_at      TIMESTAMPTZ NOT NULL
);
`

// PostgresStore persists records in a PostgreSQL table. Safe for concurrent
// use and for multiple medivox instances sharing one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn and ensures the
// selections table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("selection: connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, selectionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("selection: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("selection: invalid record: %w", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO selections (medicine_name, selected_variant, quantity, unit, selected_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.MedicineName, rec.SelectedVariant, rec.Quantity, rec.Unit, rec.SelectedAt,
	)
	if err != nil {
		return fmt.Errorf("selection: insert record: %w", err)
	}
	return nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT medicine_name, selected_variant, quantity, unit, selected_at
		 FROM selections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("selection: query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.MedicineName, &rec.SelectedVariant, &rec.Quantity, &rec.Unit, &rec.SelectedAt); err != nil {
			return nil, fmt.Errorf("selection: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selection: iterate records: %w", err)
	}
	return records, nil
}

// Ping verifies database connectivity, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
