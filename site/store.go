package site

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store publishes immutable configuration snapshots. Readers take a snapshot
// once per request and never observe a partial update; Replace swaps the
// whole configuration atomically.
type Store struct {
	current atomic.Pointer[SiteConfiguration]
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []func(*SiteConfiguration)
}

// NewStore creates a Store seeded with the given configuration.
func NewStore(cfg *SiteConfiguration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only.
func (s *Store) Snapshot() *SiteConfiguration {
	return s.current.Load()
}

// Replace publishes a new configuration snapshot and notifies listeners.
func (s *Store) Replace(cfg *SiteConfiguration) {
	old := s.current.Swap(cfg)

	s.logger.Info("Site configuration replaced",
		"domain", cfg.Domain,
		"old_version", shortVersion(old),
		"new_version", shortVersion(cfg),
		"patterns", len(cfg.RoutePatterns),
		"entities", cfg.Entities.Len())

	s.mu.Lock()
	listeners := make([]func(*SiteConfiguration), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnReplace registers a callback invoked after each snapshot swap. Used by
// the planner to invalidate its structural cache.
func (s *Store) OnReplace(fn func(*SiteConfiguration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func shortVersion(cfg *SiteConfiguration) string {
	if cfg == nil || len(cfg.Version) < 8 {
		return ""
	}
	return cfg.Version[:8]
}
