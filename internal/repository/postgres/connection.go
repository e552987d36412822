package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ndrama/panel-server/database"
)

const applicationName = "panel-server"

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	DSN      string
	MaxConns int32
}

// Connection is the shared pgx pool used by all Postgres repositories.
type Connection struct {
	*pgxpool.Pool
}

// NewConnection migrates the schema at cfg.DSN and opens a pool for it.
func NewConnection(ctx context.Context, cfg PoolConfig) (*Connection, error) {
	conf, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, cfg.DSN); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	return &Connection{Pool: pool}, nil
}

// poolConfig applies the panel's pool settings on top of the DSN. A non-zero
// MaxConns overrides pool_max_conns; an explicit application_name is kept.
func poolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	conf, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		conf.MaxConns = cfg.MaxConns
	}
	conf.MaxConnIdleTime = 5 * time.Minute
	conf.HealthCheckPeriod = 30 * time.Second
	if _, ok := conf.ConnConfig.RuntimeParams["application_name"]; !ok {
		conf.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	return conf, nil
}

func (s *Connection) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

// Ping is used by the health endpoint.
func (s *Connection) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return fmt.Errorf("connection pool is nil")
	}
	return s.Pool.Ping(ctx)
}
