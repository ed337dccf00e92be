package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/catalogsync/internal/application/catalogsync"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// RedisRunLock implements catalogsync.RunLock on Redis so that every
// instance of the service shares one lock per tenant. The owner is stored
// as the lock token, so only the owner that obtained a key can release it.
type RedisRunLock struct {
	client    *redis.Client
	locker    *redislock.Client
	keyPrefix string

	mu   sync.Mutex
	held map[heldKey]*redislock.Lock
}

type heldKey struct {
	key   string
	owner string
}

// NewRedisRunLock connects to Redis and creates a run lock
func NewRedisRunLock(cfg config.RedisConfig) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunLockWithClient(client, ""), nil
}

// NewRedisRunLockWithClient creates a lock with an existing Redis client
func NewRedisRunLockWithClient(client *redis.Client, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &RedisRunLock{
		client:    client,
		locker:    redislock.New(client),
		keyPrefix: keyPrefix,
		held:      make(map[heldKey]*redislock.Lock),
	}
}

// Acquire obtains the key for owner without retrying. It returns false
// when another owner holds the key.
func (l *RedisRunLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	lk, err := l.locker.Obtain(ctx, l.keyPrefix+key, ttl, &redislock.Options{Token: owner})
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	l.mu.Lock()
	l.held[heldKey{key: key, owner: owner}] = lk
	l.mu.Unlock()
	return true, nil
}

// Release frees the key if owner obtained it through this lock and still
// holds it. A lock that expired or was taken over is left alone.
func (l *RedisRunLock) Release(ctx context.Context, key, owner string) error {
	hk := heldKey{key: key, owner: owner}
	l.mu.Lock()
	lk, ok := l.held[hk]
	delete(l.held, hk)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// Refresh extends the key by ttl. It returns false when owner no longer
// holds it, either because it expired or because this instance never
// obtained it.
func (l *RedisRunLock) Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	hk := heldKey{key: key, owner: owner}
	l.mu.Lock()
	lk, ok := l.held[hk]
	l.mu.Unlock()
	if !ok {
		return false, nil
	}

	err := lk.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.mu.Lock()
		delete(l.held, hk)
		l.mu.Unlock()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock %s: %w", key, err)
	}
	return true, nil
}

// Ping checks the Redis connection
func (l *RedisRunLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisRunLock) Close() error {
	return l.client.Close()
}

var _ catalogsync.RunLock = (*RedisRunLock)(nil)
