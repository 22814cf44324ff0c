package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Deduper remembers ids for a TTL so redelivered messages can be skipped.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source.
func (d *Deduper) WithClock(now func() time.Time) *Deduper {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
	return d
}

// Key hashes a payload into an id.
func Key(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// ShouldProcess reports whether id was not seen within the TTL and marks it.
// The empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evictLocked(now)
	}
	return true
}

// Mark records id as seen without checking it, so a later redelivery of the
// same id is skipped. A reused id simply restarts its TTL.
func (d *Deduper) Mark(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evictLocked(now)
	}
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictLocked drops expired ids; if none expired it drops the one closest to
// expiry so the map never grows past max.
func (d *Deduper) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
			continue
		}
		if oldestKey == "" || exp.Before(oldest) {
			oldestKey, oldest = k, exp
		}
	}
	if len(d.seen) > d.max && oldestKey != "" {
		delete(d.seen, oldestKey)
	}
}
