package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BuildReadinessCheck returns the dependency probe behind /readyz. With a
// nil pool (in-memory mode) the process is always ready.
func BuildReadinessCheck(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil {
			return nil
		}
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("op=readyz.db: %w", err)
		}
		return nil
	}
}
