package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	// Allow records one attempt for key. When the budget is spent it reports false and how long
	// until the window reopens.
	Allow(key string) (bool, time.Duration)
}

// windowLimiter is a fixed-window counter keyed by storefront session.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]window
	sweepAt time.Time
}

type window struct {
	used    int
	resetAt time.Time
}

func newWindowLimiter(limit int, every time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || every <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{limit: limit, window: every, clock: clock, windows: make(map[string]window)}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(l.window)}
	}
	if w.used >= l.limit {
		return false, w.resetAt.Sub(now)
	}
	w.used++
	l.windows[key] = w
	return true, 0
}

// sweepLocked drops expired windows at most once per window length.
func (l *windowLimiter) sweepLocked(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.sweepAt = now.Add(l.window)
}
