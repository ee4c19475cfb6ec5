// internal/database/lock.go
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/model"
)

const unlockTimeout = 10 * time.Second

// AdvisoryLocker serialises runs for the same repository across processes with a Postgres
// session-level advisory lock keyed by the full repository ID, held on a dedicated pooled
// connection.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAdvisoryLocker(pool *pgxpool.Pool, logger *slog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, logger: logger}
}

// Lock acquires the lock for repo without waiting. It returns a RunInProgressError when
// another session holds it. The returned func releases the lock and the connection.
func (l *AdvisoryLocker) Lock(ctx context.Context, repo *model.Repository) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := repo.ID
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, &custom_errors.RunInProgressError{Repository: repo.Name}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1::bigint)`, key); err != nil {
			l.logger.Error("Failed to release advisory lock, closing connection", "repository", repo.Name, "error", err)
			// Closing the session drops every lock it holds.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}
