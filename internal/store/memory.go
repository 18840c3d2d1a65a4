package store

import (
	"context"
	"sync"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

// MemoryStore is a concurrency-safe in-memory HistoryStore and DedupIndex.
type MemoryStore struct {
	mu sync.RWMutex

	latest *tracking.Reading
	// oldest first; readers walk it backwards
	history []tracking.Reading
	seen    map[tracking.Fingerprint]struct{}

	maxHistory int
}

// NewMemoryStore creates a new MemoryStore. If maxHistory is <= 0 the
// default cap is used.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = tracking.DefaultHistoryCap
	}
	return &MemoryStore{
		seen:       make(map[tracking.Fingerprint]struct{}),
		maxHistory: maxHistory,
	}
}

func (s *MemoryStore) SeedIfEmpty(_ context.Context, bootstrap tracking.Reading) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil || len(s.history) > 0 {
		return false, nil
	}
	s.latest = &bootstrap
	s.history = append(s.history, bootstrap)
	return true, nil
}

// Append sets latest and adds r to history, enforcing retention by count.
func (s *MemoryStore) Append(_ context.Context, r tracking.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = &r
	s.history = append(s.history, r)

	if len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		// Copy so the dropped prefix can be collected.
		s.history = append([]tracking.Reading(nil), s.history[over:]...)
	}
	return nil
}

func (s *MemoryStore) Latest(context.Context) (tracking.Reading, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return tracking.Reading{}, false, nil
	}
	return *s.latest, true, nil
}

func (s *MemoryStore) History(_ context.Context, offset, limit int) ([]tracking.Reading, error) {
	offset = max(offset, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tracking.Reading, 0, min(max(limit, 0), len(s.history)))
	for i := len(s.history) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *MemoryStore) Seen(_ context.Context, fp tracking.Fingerprint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[fp]
	return ok, nil
}

func (s *MemoryStore) Record(_ context.Context, fp tracking.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[fp] = struct{}{}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
