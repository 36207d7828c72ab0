package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock held by another runner")

// Only the owner token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a held SET NX PX lock.
type Lock struct {
	c     *Client
	key   string
	token string
}

// AcquireLock takes the named lock for ttl or returns ErrLocked.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := c.Key("lock", name)
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}
	c.logger.Debug("Acquired Redis lock", zap.String("key", key), zap.Duration("ttl", ttl))
	return &Lock{c: c, key: key, token: token}, nil
}

// Release drops the lock if it is still ours. Safe on a nil Lock.
func (l *Lock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.c.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.c.logger.Warn("Failed to release Redis lock", zap.String("key", l.key), zap.Error(err))
	}
}
