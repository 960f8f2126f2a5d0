package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// Redis key prefix for revoked capabilities.
const revokedKeyPrefix = "crl:jti:"

// RevocationList tracks spent authenticated capabilities by JTI. A cast
// ballot revokes its capability so the token cannot be replayed against
// mutating endpoints for the rest of its lifetime.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// RedisRevocationList shares revocation state across instances. This is the
// production implementation; key expiry handles cleanup.
type RedisRevocationList struct {
	client *redis.Client
}

func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	// Key existence is the marker; the value is irrelevant.
	return l.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, err := l.client.Get(ctx, revokedKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryRevocationList is the single-instance fallback used when Redis is
// not configured, and the test implementation.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   func() time.Time
}

type MemoryRevocationOption func(*MemoryRevocationList)

func WithRevocationClock(clock func() time.Time) MemoryRevocationOption {
	return func(l *MemoryRevocationList) { l.clock = clock }
}

func NewMemoryRevocationList(opts ...MemoryRevocationOption) *MemoryRevocationList {
	l := &MemoryRevocationList{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[jti] = l.clock().Add(ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	l.mu.RLock()
	expiry, ok := l.revoked[jti]
	l.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if l.clock().After(expiry) {
		// Lazy cleanup of expired entries.
		l.mu.Lock()
		delete(l.revoked, jti)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}
