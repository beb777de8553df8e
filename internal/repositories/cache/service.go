package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pontos/internal/models"

	"github.com/redis/go-redis/v9"
)

// CacheService stores JSON values in redis under namespaced keys.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	s.hits.Add(1)
	return true, nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Key generation
func (s *CacheService) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

// Balance caching
func (s *CacheService) balanceKey(userID string) string {
	return s.GenerateKey("balance", "user", userID)
}

func (s *CacheService) SetBalances(ctx context.Context, b *models.Balances) error {
	if b == nil {
		return errors.New("cannot cache nil balances")
	}
	return s.Set(ctx, s.balanceKey(b.UserID), b)
}

func (s *CacheService) GetBalances(ctx context.Context, userID string) (*models.Balances, bool, error) {
	var b models.Balances
	found, err := s.Get(ctx, s.balanceKey(userID), &b)
	if err != nil || !found {
		return nil, false, err
	}
	return &b, true, nil
}

func (s *CacheService) InvalidateBalances(ctx context.Context, userIDs ...string) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.balanceKey(id))
	}
	return s.Delete(ctx, keys...)
}

// Stats returns hit and miss counters since start.
func (s *CacheService) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *CacheService) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *CacheService) Close() error {
	return s.client.Close()
}
