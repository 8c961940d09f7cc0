package identity

import (
	"strings"
	"sync"
	"time"
)

// Login failure limits: 5 failed attempts per 15 minutes per (email, ip).
const (
	DefaultLoginMaxFailures   = 5
	DefaultLoginFailureWindow = 15 * time.Minute

	// throttleSweepAt bounds the key map; expired windows are dropped past it.
	throttleSweepAt = 10_000
)

// LoginThrottle is a sliding-window limiter over failed logins.
// Every attempt reserves a slot before the password is checked; successful
// logins clear the key.
type LoginThrottle struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
}

// NewLoginThrottle constructs a LoginThrottle with safe defaults when inputs are invalid.
func NewLoginThrottle(limit int, window time.Duration) *LoginThrottle {
	if limit <= 0 {
		limit = DefaultLoginMaxFailures
	}
	if window <= 0 {
		window = DefaultLoginFailureWindow
	}
	return &LoginThrottle{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// ThrottleKey builds the limiter key for an attempt. ip may be empty.
func ThrottleKey(email, ip string) string {
	return NormalizeEmail(email) + "|" + strings.TrimSpace(ip)
}

// Reserve claims one attempt for key at now and reports whether it fit in
// the budget. A reserved attempt counts as a failure until Reset or Release.
func (t *LoginThrottle) Reserve(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.events) >= throttleSweepAt {
		for k := range t.events {
			t.prune(k, now)
		}
	}
	events := t.prune(key, now)
	if len(events) >= t.limit {
		return false
	}
	t.events[key] = append(events, now)
	return true
}

// Release returns an attempt reserved at the given time without counting it.
func (t *LoginThrottle) Release(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := t.events[key]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Equal(at) {
			events = append(events[:i], events[i+1:]...)
			break
		}
	}
	if len(events) == 0 {
		delete(t.events, key)
		return
	}
	t.events[key] = events
}

// Reset forgets key.
func (t *LoginThrottle) Reset(key string) {
	t.mu.Lock()
	delete(t.events, key)
	t.mu.Unlock()
}

// prune drops events older than the window. Callers hold mu.
func (t *LoginThrottle) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	events := t.events[key]
	dst := events[:0]
	for _, e := range events {
		if e.After(cut) {
			dst = append(dst, e)
		}
	}
	if len(dst) == 0 {
		delete(t.events, key)
		return nil
	}
	t.events[key] = dst
	return dst
}
