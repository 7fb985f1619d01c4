package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/courtvision/draftroom/internal/dbconfig"
)

// setupDatabase opens both database handles: a pgx pool for the draft store
// and a database/sql handle for the outbox relay, which needs transactions
// with row locking through the lib/pq driver.
func setupDatabase(ctx context.Context) (*pgxpool.Pool, *sql.DB, error) {
	cfg := dbconfig.FromEnv()
	dsn := cfg.DSN()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to open outbox database handle: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping outbox database handle: %w", err)
	}

	return pool, db, nil
}
