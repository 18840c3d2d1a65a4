package tracking

import (
	"context"
	"fmt"
	"log/slog"
)

// Service is the read-only facade used by presentation layers, plus the
// startup bootstrap. It never calls Append or Record for live readings.
type Service struct {
	store      HistoryStore
	dedup      DedupIndex
	historyCap int
	logger     *slog.Logger
}

// NewService creates a new Service. historyCap <= 0 means DefaultHistoryCap.
func NewService(store HistoryStore, dedup DedupIndex, historyCap int, logger *slog.Logger) *Service {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		dedup:      dedup,
		historyCap: historyCap,
		logger:     logger,
	}
}

// HistoryCap returns the configured history bound.
func (s *Service) HistoryCap() int {
	return s.historyCap
}

// Bootstrap seeds an empty store with BootstrapReading and pre-registers its
// fingerprint so a live reading with identical fields is suppressed.
func (s *Service) Bootstrap(ctx context.Context) error {
	seeded, err := s.store.SeedIfEmpty(ctx, BootstrapReading)
	if err != nil {
		return fmt.Errorf("seed store: %w", err)
	}
	if !seeded {
		s.logger.Debug("store already populated; skipping bootstrap")
		return nil
	}
	if err := s.dedup.Record(ctx, FingerprintOf(BootstrapReading)); err != nil {
		return fmt.Errorf("record bootstrap fingerprint: %w", err)
	}
	s.logger.Info("store seeded with bootstrap reading",
		"latitude", BootstrapReading.Latitude,
		"longitude", BootstrapReading.Longitude)
	return nil
}

// GetLatest returns the latest reading, if any.
func (s *Service) GetLatest(ctx context.Context) (Reading, bool, error) {
	return s.store.Latest(ctx)
}

// GetHistory returns a newest-first page of history.
func (s *Service) GetHistory(ctx context.Context, offset, limit int) ([]Reading, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > s.historyCap {
		limit = s.historyCap
	}
	return s.store.History(ctx, offset, limit)
}

// GetLatestDeduped returns latest followed by history newest-first, with
// duplicates collapsed using a set scoped to this call. Duplicates can reach
// history when two writers race past the dedup check; this pass hides them
// from readers. An empty store yields an empty, non-nil slice.
func (s *Service) GetLatestDeduped(ctx context.Context) ([]Reading, error) {
	latest, ok, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, 0, s.historyCap)
	if err != nil {
		return nil, err
	}

	combined := make([]Reading, 0, len(history)+1)
	if ok {
		combined = append(combined, latest)
	}
	combined = append(combined, history...)

	return Dedupe(combined), nil
}

// Dedupe keeps the first occurrence of every fingerprint, preserving order.
func Dedupe(readings []Reading) []Reading {
	seen := make(map[Fingerprint]struct{}, len(readings))
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		fp := FingerprintOf(r)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, r)
	}
	return out
}
