package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/config"
)

// DB is the shared pgx pool behind the Postgres save store.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// NewDB opens and pings the pool. A bad DSN or an unreachable database
// fails the boot here, not on the first save.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info("database connected", zap.Int32("maxConns", poolCfg.MaxConns))

	return &DB{Pool: pool, log: log}, nil
}

// Close releases the pool. Safe to call once during shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}
