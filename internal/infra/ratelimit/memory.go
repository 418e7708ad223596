// Package ratelimit throttles the public verification endpoint. Keys arrive
// already namespaced by the HTTP middleware ("verify:ip:" plus the caller
// address), so a limiter only has to count them per fixed window.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"certledger/internal/domain"
)

// ErrLimiterFull is returned when every tracked window is still live and a
// new key cannot be admitted without unbounded growth.
var ErrLimiterFull = errors.New("rate limiter key table full")

type countingWindow struct {
	hits    int
	resetAt time.Time
}

type memoryLimiter struct {
	mu      sync.Mutex
	clock   func() time.Time
	windows map[string]*countingWindow
	maxKeys int
}

// NewMemoryLimiter returns a single-process fixed-window limiter, used when
// no redis address is configured. Counts reset on restart and are not
// shared between replicas, which is acceptable for the fallback role.
func NewMemoryLimiter(maxKeys int, clock func() time.Time) domain.RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &memoryLimiter{
		clock:   clock,
		windows: make(map[string]*countingWindow, 64),
		maxKeys: maxKeys,
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windows[key]
	switch {
	case w == nil:
		if len(m.windows) >= m.maxKeys {
			// Only sweep under pressure; steady state never pays for it.
			m.dropExpired(now)
			if len(m.windows) >= m.maxKeys {
				return domain.RateLimitDecision{}, ErrLimiterFull
			}
		}
		w = &countingWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	case now.After(w.resetAt):
		// A lapsed window restarts in place, keeping the entry for the
		// returning caller.
		w.hits = 0
		w.resetAt = now.Add(window)
	}

	decision := domain.RateLimitDecision{Limit: limit, ResetAt: w.resetAt}
	if w.hits >= limit {
		return decision, nil
	}
	w.hits++
	decision.Allowed = true
	decision.Remaining = limit - w.hits
	return decision, nil
}

func (m *memoryLimiter) dropExpired(now time.Time) {
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
		}
	}
}
