package sos

import (
	"context"
	"sort"
	"sync"
)

// Store persists alerts. Update must fail with ErrVersionConflict when the
// stored version differs from expectedVersion, and on success bumps
// a.Version.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	Update(ctx context.Context, a *Alert, expectedVersion int64) error
	ListByStatus(ctx context.Context, statuses []Status) ([]*Alert, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Alert, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
	codes  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*Alert),
		codes:  make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[a.EmergencyCode]; ok {
		return ErrDuplicateCode
	}
	a.Version = 1
	s.alerts[a.ID] = a.Clone()
	s.codes[a.EmergencyCode] = a.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *Alert, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	a.Version = expectedVersion + 1
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses []Status) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*Alert
	for _, a := range s.alerts {
		if want[a.Status] {
			out = append(out, a.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, a := range s.alerts {
		if a.UserID == userID {
			out = append(out, a.Clone())
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(alerts []*Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
