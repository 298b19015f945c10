package history

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/tourist-safety/internal/models"
)

// RedisStore keeps the last sample per tourist in Redis so that several
// server instances share one history.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
}

// NewRedisStore creates a RedisStore. A retention of zero stores keys
// without expiry.
func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{redis: redisClient, retention: retention}
}

func historyKey(touristID string) string {
	return fmt.Sprintf("location_history:%s", touristID)
}

// Get retrieves the last stored sample for a tourist
func (s *RedisStore) Get(ctx context.Context, touristID string) (*models.LocationSample, error) {
	data, err := s.redis.Get(ctx, historyKey(touristID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location history from Redis: %w", err)
	}

	var sample models.LocationSample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location history: %w", err)
	}

	return &sample, nil
}

// Put overwrites the stored sample for a tourist
func (s *RedisStore) Put(ctx context.Context, touristID string, sample models.LocationSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal location history: %w", err)
	}

	if err := s.redis.Set(ctx, historyKey(touristID), data, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to set location history in Redis: %w", err)
	}

	return nil
}

// Delete forgets a tourist's history
func (s *RedisStore) Delete(ctx context.Context, touristID string) error {
	return s.redis.Del(ctx, historyKey(touristID)).Err()
}
