package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

// NewRedisClient connects using the Redis settings in cfg and pings once.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}

// NewLocker picks the lock backend named by cfg. rdb may be nil for the
// local backend.
func NewLocker(cfg config.Config, rdb *redis.Client) (Locker, error) {
	switch cfg.LockBackend {
	case config.LockBackendLocal:
		return NewLocalProviderLocker(cfg.LockWait), nil
	case config.LockBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("lock backend %q needs a redis client", cfg.LockBackend)
		}
		return NewRedisProviderLocker(rdb, cfg.LockTTL, cfg.LockWait), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}
