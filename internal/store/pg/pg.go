// Package pg implements core.Repository on PostgreSQL via pgx.
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloway-app/authsvc/internal/store/core"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ core.Repository = (*Repository)(nil)

// Options ajusta el pool de conexiones.
type Options struct {
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// New abre un pool contra dsn y verifica la conexión.
func New(ctx context.Context, dsn string, opts Options) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close libera el pool.
func (r *Repository) Close() {
	r.pool.Close()
}
