package alert

import (
	"sync"
	"time"
)

// dedup folds repeated alerts with the same dedup key within a time-to-live
// window. It is safe for concurrent use.
type dedup struct {
	seen map[string]time.Time // dedup key -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// newDedup creates a dedup that considers an alert a duplicate if its key
// has been seen within the given ttl.
func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// isDuplicate returns true if the key has been seen within the TTL window.
// If the key has not been seen (or has expired), it is recorded and false is
// returned.
func (d *dedup) isDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// cleanup removes entries that have expired beyond the TTL. Called
// periodically by the manager to prevent unbounded growth.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
