package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a SETNX lock whose value names the holder, so a worker never
// deletes a lock that expired and was taken by another.
type RedisLock struct {
	store  lockStore
	key    string
	ttl    time.Duration
	holder string
}

// LockKey scopes the lock to one deployment environment.
func LockKey(env string) string {
	return pkgredis.LockKey("maintenance", env)
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	holder := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, holder, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if ok {
		l.holder = holder
	}
	return ok, nil
}

// Release deletes the lock only if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.holder == "" {
		return nil
	}
	holder := l.holder
	l.holder = ""

	if _, err := l.store.DelIfEqual(ctx, l.key, holder); err != nil {
		return fmt.Errorf("release maintenance lock: %w", err)
	}
	return nil
}
