package history

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/smukkama/tourist-safety/internal/models"
)

// MemoryStore is a process-local Store. Entries expire after the retention
// period so tourists who stop reporting do not accumulate forever.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a MemoryStore. A retention of zero keeps entries
// for the life of the process.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	expiration := retention
	cleanup := retention / 2
	if retention <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{cache: gocache.New(expiration, cleanup)}
}

func (s *MemoryStore) Get(_ context.Context, touristID string) (*models.LocationSample, error) {
	v, ok := s.cache.Get(touristID)
	if !ok {
		return nil, nil
	}
	sample := v.(models.LocationSample)
	return &sample, nil
}

func (s *MemoryStore) Put(_ context.Context, touristID string, sample models.LocationSample) error {
	s.cache.SetDefault(touristID, sample)
	return nil
}

// Len returns the number of tourists currently tracked.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
