package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"banketl/internal/config"
)

// DB wraps the warehouse connection pool with bounded-timeout helpers.
type DB struct {
	Pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Connect opens a connection pool against the warehouse and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("warehouse connection pool initialized",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Name))

	return &DB{
		Pool:         pool,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}, nil
}

// WithTimeout derives a context bounded by the configured query timeout.
// Every database interaction goes through this so no call can hang.
func (d *DB) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

// Close releases the connection pool.
func (d *DB) Close() {
	d.Pool.Close()
	d.logger.Info("warehouse connection pool closed")
}

// TableRowCount returns the number of rows in schema.table.
func (d *DB) TableRowCount(ctx context.Context, schema, table string) (int64, error) {
	ctx, cancel := d.WithTimeout(ctx)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", schema, table)
	if err := d.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s.%s: %w", schema, table, err)
	}
	return count, nil
}

// IsUniqueViolation reports whether err is a unique-constraint conflict.
// Dimension resolution relies on this to recover from concurrent inserts.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
