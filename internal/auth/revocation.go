package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notaspese/internal/cache"
)

const revokedKeyPrefix = "auth:revoked:"

// ConnectRedis accepts a redis:// URL or a bare host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.Contains(redisURL, "://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRevocationStore keeps revocation flags in Redis with a TTL matching
// the session expiry.
type RedisRevocationStore struct {
	client redis.Cmdable
}

func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) MarkRevoked(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, revokedKeyPrefix+sessionID, "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationStore keeps revocations in process. Entries are lost on
// restart and evicted past maxEntries.
type MemoryRevocationStore struct {
	revoked *cache.LRUCache[struct{}]
}

func NewMemoryRevocationStore(maxEntries int, defaultTTL time.Duration) *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: cache.NewLRUCache[struct{}](maxEntries, defaultTTL)}
}

// Cache exposes the backing cache for registration with a cache.Manager.
func (s *MemoryRevocationStore) Cache() *cache.LRUCache[struct{}] {
	return s.revoked
}

func (s *MemoryRevocationStore) MarkRevoked(_ context.Context, sessionID string, expiresAt time.Time) error {
	s.revoked.SetWithTTL(sessionID, struct{}{}, time.Until(expiresAt))
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	_, ok := s.revoked.Get(sessionID)
	return ok, nil
}
