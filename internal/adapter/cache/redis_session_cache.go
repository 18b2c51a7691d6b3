package cache

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribeworks/scribe-auth/internal/domain"
	"github.com/scribeworks/scribe-auth/internal/repository"
)

// RedisSessionCache implements SessionCache backed by Redis.
type RedisSessionCache struct {
	client redis.UniversalClient
}

var _ repository.SessionCache = (*RedisSessionCache)(nil)

// NewRedisSessionCache constructs a Redis-backed session cache.
func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

// Record stores the current access token for the pair. A single SET with
// expiry atomically replaces whatever entry was there before.
func (s *RedisSessionCache) Record(ctx context.Context, userID int64, deviceID, accessToken string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(userID, deviceID), accessToken, ttl).Err(); err != nil {
		return domain.NewInfraError("session cache set", err)
	}
	return nil
}

// IsLive reports whether the supplied token is the one currently recorded
// for the pair. A rotated-out token fails the comparison even before its
// TTL would have expired.
func (s *RedisSessionCache) IsLive(ctx context.Context, userID int64, deviceID, accessToken string) (bool, error) {
	stored, err := s.client.Get(ctx, sessionKey(userID, deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, domain.NewInfraError("session cache get", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(accessToken)) == 1, nil
}

// Revoke removes the entry for the pair.
func (s *RedisSessionCache) Revoke(ctx context.Context, userID int64, deviceID string) error {
	if err := s.client.Del(ctx, sessionKey(userID, deviceID)).Err(); err != nil && err != redis.Nil {
		return domain.NewInfraError("session cache del", err)
	}
	return nil
}

func sessionKey(userID int64, deviceID string) string {
	return fmt.Sprintf("access_token:%d:%s", userID, deviceID)
}
