package db

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PoolOptions struct {
	AppName          string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

func DefaultPoolOptions(appName string) PoolOptions {
	return PoolOptions{
		AppName:          appName,
		MaxConns:         20,
		MinConns:         2,
		StatementTimeout: 10 * time.Second,
	}
}

func NewPostgresPool(ctx context.Context, dsn string, opts PoolOptions, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	rp := cfg.ConnConfig.RuntimeParams
	if opts.AppName != "" {
		rp["application_name"] = opts.AppName
	}
	if opts.StatementTimeout > 0 {
		// claims must fail fast and retry rather than queue behind a long lock
		rp["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres pool created",
		zap.String("app", opts.AppName),
		zap.Int32("max_conns", cfg.MaxConns),
	)
	return pool, nil
}
