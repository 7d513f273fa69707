package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicgrid/intake-engine/pkg/config"
	"github.com/clinicgrid/intake-engine/pkg/retry"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// NewConnection creates a new database connection pool from the service
// configuration. The host is resolved for Docker so a containerized engine
// can reach a Postgres running on the host machine.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	resolved := *cfg
	resolved.Host = config.ResolveHostForDocker(cfg.Host)

	poolConfig, err := pgxpool.ParseConfig(resolved.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	// Postgres may still be starting when the engine boots; the dial is
	// retried with backoff before giving up.
	pool, err := retry.DoWithResult(ctx, nil, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
