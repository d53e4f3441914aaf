// Package app wires process-level concerns: dependency readiness, the ops
// HTTP endpoint and the periodic beat.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// WaitForDeps blocks until Postgres and Redis answer pings, with exponential
// backoff. Containers routinely win the race against their stores at boot.
func WaitForDeps(ctx context.Context, pg *pgxpool.Pool, rdb *redis.Client, log *slog.Logger) error {
	op := func() error {
		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("op=app.WaitForDeps: postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("op=app.WaitForDeps: redis: %w", err)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	notify := func(err error, next time.Duration) {
		log.Warn("dependency not ready", slog.Any("error", err), slog.Duration("retry_in", next))
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}
