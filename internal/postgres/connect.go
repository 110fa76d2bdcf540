package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pingFunc func(ctx context.Context, cfg Config) error

// CheckConnectivity opens a throwaway pool for cfg and pings it.
func CheckConnectivity(ctx context.Context, cfg Config) error {
	return checkConnectivity(ctx, cfg, defaultPing)
}

func checkConnectivity(ctx context.Context, cfg Config, ping pingFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ping(ctx, cfg); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func defaultPing(ctx context.Context, cfg Config) error {
	pool, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return pool.Ping(ctx)
}

// Open builds the shared connection pool. The pool is safe for concurrent use
// and owned by the caller.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return pool, nil
}
