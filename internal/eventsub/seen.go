package eventsub

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// seenCache remembers webhook message ids that were already handled, so
// replays and redeliveries stay invisible. Entries expire after a TTL well
// beyond Twitch's retry window and the cache is capped, oldest-first.
type seenCache struct {
	clock clockwork.Clock
	ttl   time.Duration
	max   int

	mu      sync.Mutex
	entries map[string]time.Time
	order   []string
}

func newSeenCache(clock clockwork.Clock, ttl time.Duration, max int) *seenCache {
	return &seenCache{
		clock:   clock,
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time),
	}
}

// Seen reports whether the message id was already marked and has not expired.
func (s *seenCache) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	_, ok := s.entries[id]
	return ok
}

// Mark records the message id as processed.
func (s *seenCache) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if _, ok := s.entries[id]; ok {
		return
	}
	for len(s.entries) >= s.max {
		s.evictOldestLocked()
	}
	s.entries[id] = s.clock.Now()
	s.order = append(s.order, id)
}

func (s *seenCache) pruneLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for len(s.order) > 0 {
		oldest := s.order[0]
		at, ok := s.entries[oldest]
		if ok && at.After(cutoff) {
			return
		}
		s.evictOldestLocked()
	}
}

func (s *seenCache) evictOldestLocked() {
	if len(s.order) == 0 {
		return
	}
	delete(s.entries, s.order[0])
	s.order = s.order[1:]
}

func (s *seenCache) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
