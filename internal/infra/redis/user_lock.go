package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLocker is a lease-based lock shared by every instance talking to the same Redis.
// A crashed holder loses the lock once the lease expires.
type UserLocker struct {
	client *redis.Client
	lease  time.Duration
	retry  time.Duration
}

func NewUserLocker(client *redis.Client, lease time.Duration) *UserLocker {
	if lease <= 0 {
		lease = 5 * time.Second
	}
	return &UserLocker{client: client, lease: lease, retry: 10 * time.Millisecond}
}

func (l *UserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := userLockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			log.Printf("[locks] release %s: %v", key, err)
		}
	}, nil
}
