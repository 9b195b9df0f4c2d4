package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
)

// UserLocker serializes matchmaking per user across every instance sharing the
// database. It holds a session-level advisory lock on a dedicated pooled
// connection until the returned func runs.
type UserLocker struct {
	pool *pgxpool.Pool
}

func NewUserLocker(pool *pgxpool.Pool) *UserLocker {
	return &UserLocker{pool: pool}
}

func (l *UserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, userID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire user lock: %w", err)
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, userID); err != nil {
			log.Printf("[locks] release %s: %v", userID, err)
			// Closing the session drops any advisory lock it still holds.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
