package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookpace/hookpace/internal/domain"
)

// Connect creates a pgxpool connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate runs all pending up-migrations from the migrations/ directory.
// It is idempotent: already-applied migrations are skipped.
func Migrate(databaseURL string) error {
	// golang-migrate's pgx/v5 driver expects the scheme "pgx5://".
	var rest string
	switch {
	case strings.HasPrefix(databaseURL, "postgresql://"):
		rest = databaseURL[len("postgresql://"):]
	case strings.HasPrefix(databaseURL, "postgres://"):
		rest = databaseURL[len("postgres://"):]
	default:
		rest = databaseURL
	}

	m, err := migrate.New("file://migrations", "pgx5://"+rest)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

type pgRegistry struct {
	pool *pgxpool.Pool
}

// NewPgRegistry returns a Registry backed by PostgreSQL. Rate limits are
// persisted at second granularity, matching the configuration API.
func NewPgRegistry(pool *pgxpool.Pool) Registry {
	return &pgRegistry{pool: pool}
}

func (r *pgRegistry) List(ctx context.Context) ([]domain.Destination, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, endpoint_url, rate_limit_seconds
		FROM destinations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []domain.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *pgRegistry) Get(ctx context.Context, id string) (*domain.Destination, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, endpoint_url, rate_limit_seconds
		FROM destinations WHERE id = $1`, id)

	d, err := scanDestination(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (r *pgRegistry) Upsert(ctx context.Context, d domain.Destination) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO destinations (id, name, endpoint_url, rate_limit_seconds, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			endpoint_url = EXCLUDED.endpoint_url,
			rate_limit_seconds = EXCLUDED.rate_limit_seconds,
			updated_at = now()`,
		d.ID, d.Name, d.EndpointURL, int64(d.RateLimit/time.Second),
	)
	if err != nil {
		return fmt.Errorf("upsert destination: %w", err)
	}
	return nil
}

func (r *pgRegistry) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM destinations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanDestination(row pgx.Row) (*domain.Destination, error) {
	var d domain.Destination
	var rateLimitSeconds int64
	if err := row.Scan(&d.ID, &d.Name, &d.EndpointURL, &rateLimitSeconds); err != nil {
		return nil, err
	}
	d.RateLimit = time.Duration(rateLimitSeconds) * time.Second
	return &d, nil
}

// compile-time check that pgRegistry implements Registry
var _ Registry = (*pgRegistry)(nil)
