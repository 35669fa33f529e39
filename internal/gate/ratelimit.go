package gate

import (
	"sync"
	"time"
)

// Rate limit window labels reported on denial.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
)

// RateLimiter enforces per-identity fixed-window limits over two windows at
// once. These are fixed windows, not a token bucket: a burst straddling a
// window boundary can admit up to twice the nominal rate across the boundary.
// Denial is immediate; no request ever waits for capacity.
type RateLimiter struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	perMinute int
	perHour   int
	now       func() time.Time
}

type windowCounter struct {
	minuteCount int
	minuteStart time.Time
	hourCount   int
	hourStart   time.Time
	lastSeen    time.Time
}

// NewRateLimiter creates a limiter with the given per-minute and per-hour
// ceilings. Counters are created lazily per identity.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{
		counters:  make(map[string]*windowCounter),
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
	}
}

// Check evaluates and, when admitted, consumes one request for the identity.
// The minute window is evaluated first, then the hour window; the returned
// window label and limit identify which ceiling tripped. Evaluation and
// increment happen under one lock so concurrent requests never undercount.
func (l *RateLimiter) Check(identity string) (allowed bool, window string, limit int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[identity]
	if !ok {
		c = &windowCounter{minuteStart: now, hourStart: now}
		l.counters[identity] = c
	}
	c.lastSeen = now

	if now.Sub(c.minuteStart) >= time.Minute {
		c.minuteCount = 0
		c.minuteStart = now
	}
	if now.Sub(c.hourStart) >= time.Hour {
		c.hourCount = 0
		c.hourStart = now
	}

	if c.minuteCount >= l.perMinute {
		return false, WindowMinute, l.perMinute
	}
	if c.hourCount >= l.perHour {
		return false, WindowHour, l.perHour
	}

	c.minuteCount++
	c.hourCount++
	return true, "", 0
}

// Cleanup removes counters idle for longer than the hour window. Call
// periodically to bound memory; stale counters are otherwise harmless.
func (l *RateLimiter) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for identity, c := range l.counters {
		if now.Sub(c.lastSeen) > time.Hour {
			delete(l.counters, identity)
		}
	}
}
