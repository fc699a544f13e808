// Package dedup collapses concurrent identical fetches. Two users comparing
// the same product at the same moment must produce one upstream search, not
// two.
package dedup

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// StaleAge is how long an in-flight key may live before the sweeper assumes
// the fetch leaked and forgets it.
const StaleAge = 10 * time.Minute

// Deduper wraps singleflight with registration times so stuck fetches can
// be expired. Keys are strict signatures.
type Deduper struct {
	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]time.Time
	now      func() time.Time
	log      zerolog.Logger
}

func New(log zerolog.Logger) *Deduper {
	return &Deduper{
		inflight: make(map[string]time.Time),
		now:      time.Now,
		log:      log.With().Str("component", "dedup").Logger(),
	}
}

// Do executes fn once per key across concurrent callers. Every caller gets
// the executor's result; shared reports whether this caller piggybacked on
// another's fetch.
func (d *Deduper) Do(key string, fn func() (any, error)) (any, error, bool) {
	d.mu.Lock()
	if _, ok := d.inflight[key]; !ok {
		d.inflight[key] = d.now()
	}
	d.mu.Unlock()

	return d.group.Do(key, func() (any, error) {
		defer func() {
			d.mu.Lock()
			delete(d.inflight, key)
			d.mu.Unlock()
		}()
		return fn()
	})
}

// InFlight reports how many fetches are currently running.
func (d *Deduper) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// SweepStale forgets keys older than maxAge so a hung fetch cannot absorb
// callers forever. New calls for a forgotten key run fresh.
func (d *Deduper) SweepStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = StaleAge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, started := range d.inflight {
		if now.Sub(started) >= maxAge {
			d.group.Forget(key)
			delete(d.inflight, key)
			removed++
		}
	}
	if removed > 0 {
		d.log.Warn().Int("removed", removed).Msg("forgot stale in-flight fetches")
	}
	return removed
}
