package classifier

import (
	"sync"
	"time"
)

// Clock returns the current time
type Clock func() time.Time

type pairKey struct {
	category string
	intent   string
}

// Debouncer remembers when each (category, intent) pair was last emitted. It
// has a single writer, the engine that owns it; the mutex only makes Len and
// Reset safe to call from elsewhere.
type Debouncer struct {
	window time.Duration
	now    Clock

	mu   sync.Mutex
	last map[pairKey]time.Time
}

// NewDebouncer creates a debouncer with the given window. A nil clock means time.Now.
func NewDebouncer(window time.Duration, now Clock) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{
		window: window,
		now:    now,
		last:   make(map[pairKey]time.Time),
	}
}

// Allow reports whether the pair may be emitted now. A suppressed pair leaves
// the state untouched; an allowed pair records the current time.
func (d *Debouncer) Allow(category, intent string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := pairKey{category: category, intent: intent}
	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now
	return true
}

// Window returns the configured debounce window
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Len returns the number of pairs tracked
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// Reset forgets every pair
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = make(map[pairKey]time.Time)
}
