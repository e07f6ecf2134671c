// Package ratelimit implements fixed-window action budgets for the
// conversation service. State is in-memory and per-process: losing it on
// restart only errs on the permissive side.
package ratelimit

import (
	"sync"
	"time"
)

// Policy is one action budget: at most MaxCount operations per Window.
type Policy struct {
	MaxCount int
	Window   time.Duration
}

// Decision is the outcome of a Check. RetryAfter is the time until the
// current window resets; zero when allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks fixed windows keyed by (subject, action).
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*window
	now func() time.Time
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{m: make(map[string]*window), now: time.Now}
}

// NewWithClock returns a limiter with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{m: make(map[string]*window), now: now}
}

// Check consumes one slot from the subject's window. If the window has
// expired it resets; if the budget is exhausted the decision carries
// the remaining time until reset.
func (l *Limiter) Check(key string, p Policy) Decision {
	if p.MaxCount <= 0 || p.Window <= 0 {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.m[key]
	if !ok || now.Sub(w.start) >= p.Window {
		l.m[key] = &window{start: now, count: 1}
		return Decision{Allowed: true}
	}
	if w.count >= p.MaxCount {
		return Decision{Allowed: false, RetryAfter: p.Window - now.Sub(w.start)}
	}
	w.count++
	return Decision{Allowed: true}
}

// Sweep drops windows older than maxAge and returns how many were
// removed. Called from the maintenance scheduler.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, w := range l.m {
		if now.Sub(w.start) >= maxAge {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
