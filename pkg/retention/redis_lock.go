package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-instance purge lock using SET NX PX. The TTL
// bounds how long a crashed instance can block purges.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisLocker connects to url and verifies the connection.
func NewRedisLocker(ctx context.Context, url string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocker{
		client: client,
		prefix: "trequer:purge:",
		ttl:    ttl,
		logger: logging.With("component", "retention_lock"),
	}, nil
}

func (l *RedisLocker) key(class reading.DataClass) string {
	return l.prefix + string(class)
}

// TryLock sets the class key with a fresh token if it is absent
func (l *RedisLocker) TryLock(ctx context.Context, class reading.DataClass) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(class), token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", class, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// The purge context may already be done; release on its own deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key(class)}, token).Err(); err != nil {
			l.logger.Warn("Failed to release purge lock", "data_class", class, "error", err)
		}
	}, true, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
