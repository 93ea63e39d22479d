// Package postgres provides the PostgreSQL connection pool, migration runner
// and event store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/Strob0t/eventweb/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// serverlessEnv lists variables set by edge and function runtimes.
var serverlessEnv = []string{
	"AWS_LAMBDA_FUNCTION_NAME",
	"VERCEL",
	"NETLIFY",
	"K_SERVICE",
	"FUNCTION_TARGET",
}

// Serverless pool limits. One connection per instance, released quickly.
const (
	serverlessMaxConns     = 1
	serverlessIdleTime     = 30 * time.Second
	serverlessLifetime     = 5 * time.Minute
	serverlessHealthPeriod = time.Minute
)

// IsServerless reports whether the process runs in an edge or function
// runtime, detected from the environment.
func IsServerless() bool {
	for _, key := range serverlessEnv {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return true
		}
	}
	return false
}

// UseServerless resolves cfg.Mode. "auto" (or empty) defers to IsServerless.
func UseServerless(cfg config.Postgres) bool {
	switch strings.ToLower(cfg.Mode) {
	case config.PostgresModePool:
		return false
	case config.PostgresModeServerless:
		return true
	default:
		return IsServerless()
	}
}

// PoolConfig builds the pgxpool configuration for cfg. In serverless mode the
// pool holds a single connection and sends statements without server-side
// prepared statements so it works through transaction-mode poolers such as
// Neon's pooled endpoint.
func PoolConfig(cfg config.Postgres) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if UseServerless(cfg) {
		poolCfg.MaxConns = serverlessMaxConns
		poolCfg.MinConns = 0
		poolCfg.MaxConnLifetime = serverlessLifetime
		poolCfg.MaxConnIdleTime = serverlessIdleTime
		poolCfg.HealthCheckPeriod = serverlessHealthPeriod
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
		poolCfg.ConnConfig.StatementCacheCapacity = 0
		poolCfg.ConnConfig.DescriptionCacheCapacity = 0
		return poolCfg, nil
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck
	return poolCfg, nil
}

// NewPool creates a pgxpool connection pool from a config.Postgres struct.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// openMigrationDB opens a database/sql handle for goose.
func openMigrationDB(dsn string) (*sql.DB, error) {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	return db, nil
}

// RunMigrations applies all pending goose migrations from the embedded SQL files.
func RunMigrations(ctx context.Context, dsn string) error {
	db, err := openMigrationDB(dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// RollbackMigrations rolls back the last N migrations.
func RollbackMigrations(ctx context.Context, dsn string, steps int) error {
	db, err := openMigrationDB(dsn)
	if err != nil {
		return fmt.Errorf("open db for rollback: %w", err)
	}
	defer func() { _ = db.Close() }()

	for range steps {
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}

	return nil
}

// MigrationVersion returns the current migration version.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	db, err := openMigrationDB(dsn)
	if err != nil {
		return 0, fmt.Errorf("open db for version: %w", err)
	}
	defer func() { _ = db.Close() }()

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}

	return version, nil
}
