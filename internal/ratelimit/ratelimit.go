package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check. Remaining and ResetAt are
// reported to clients on every response, allowed or not, so well-behaved
// uploaders can pace themselves instead of slamming into 429s.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// Store tracks fixed request windows per identity. A window opens on the
// first request and every request inside it counts against the limit; at
// ResetAt the identity starts a fresh window. Fixed windows admit up to
// 2x the limit across a boundary, which is acceptable for upload pacing
// and keeps the remaining/reset arithmetic exact.
type Store struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	length time.Duration

	stopCleanup chan struct{}
	now         func() time.Time
}

// NewStore creates a limiter admitting limit requests per length window, per
// identity. A limit of 0 or less disables limiting: every check is allowed.
func NewStore(limit int, length time.Duration) *Store {
	store := &Store{
		windows:     make(map[string]*window),
		limit:       limit,
		length:      length,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	go store.cleanupLoop()
	return store
}

// Allow records one request for identity and reports whether it is admitted.
func (s *Store) Allow(identity string) Decision {
	if s.limit <= 0 {
		return Decision{Allowed: true, Limit: s.limit}
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(s.length)}
		s.windows[identity] = w
	}
	w.lastSeen = now

	if w.count >= s.limit {
		return Decision{Limit: s.limit, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++

	return Decision{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - w.count,
		ResetAt:   w.resetAt,
	}
}

// cleanupLoop periodically removes idle windows so the map does not grow
// without bound under many distinct identities.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if now.Sub(w.lastSeen) > 15*time.Minute {
			delete(s.windows, key)
		}
	}
}

// Stop shuts down the cleanup goroutine.
func (s *Store) Stop() {
	close(s.stopCleanup)
}
