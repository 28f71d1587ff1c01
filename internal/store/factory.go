package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"modeld/internal/config"
)

// New returns a Postgres-backed store when a DSN is configured, otherwise the
// in-memory store.
func New(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	if cfg.DSN == "" {
		return NewMemoryStore(), nil
	}
	pool, err := newPgPool(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(pool), nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Store traffic is short CRUD calls from the supervisor plus one status
	// upsert per worker lifecycle edge; a handful of connections covers even
	// a parallel startup batch, and idle ones are released between bursts.
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
