package agent

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// warnThrottle deduplicates repeated diagnostic warnings. One limiter
// per warning key, constructed per controller; Reset is the only way to
// clear it.
type warnThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newWarnThrottle(interval time.Duration) *warnThrottle {
	return &warnThrottle{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Allow reports whether a warning with this key may be emitted now.
func (t *warnThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[key] = limiter
	}
	return limiter.Allow()
}

// Reset clears all limiter state.
func (t *warnThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiters = make(map[string]*rate.Limiter)
}
