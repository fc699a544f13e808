// Package ratelimit implements the fixed-window request limits for the
// compare endpoint. Windows are process-local: with a single instance in
// front of SQLite there is no shared store to coordinate through.
package ratelimit

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fixed limits for the compare endpoint.
const (
	UserLimit = 30 // per user per minute
	IPLimit   = 10 // per IP per minute
)

const sweepProbability = 100 // 1-in-100 calls triggers an inline sweep

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per key in fixed windows. A new window starts on
// the first request after the previous window ends; there is no sliding.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*entry
	now     func() time.Time
	log     zerolog.Logger
}

func NewLimiter(limit int, window time.Duration, log zerolog.Logger) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
		log:     log,
	}
}

// Allow records a request for key. When the limit is hit it returns false
// and the whole seconds until the window resets, suitable for a Retry-After
// header.
func (l *Limiter) Allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[key] = &entry{count: 1, windowStart: now}
		if rand.Intn(sweepProbability) == 0 {
			l.sweepLocked(now)
		}
		return true, 0
	}

	if e.count < l.limit {
		e.count++
		return true, 0
	}

	retryAfter := int(math.Ceil((l.window - now.Sub(e.windowStart)).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Sweep drops entries whose window has passed and reports how many were
// removed. The scheduler calls this so idle keys do not accumulate.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Limiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports how many keys currently hold a window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Service bundles the two limits the compare endpoint enforces.
type Service struct {
	user *Limiter
	ip   *Limiter
	log  zerolog.Logger
}

func NewService(log zerolog.Logger) *Service {
	l := log.With().Str("component", "ratelimit").Logger()
	return &Service{
		user: NewLimiter(UserLimit, time.Minute, l),
		ip:   NewLimiter(IPLimit, time.Minute, l),
		log:  l,
	}
}

// AllowUser checks the per-user budget.
func (s *Service) AllowUser(userID string) (bool, int) {
	return s.user.Allow("user:" + userID)
}

// AllowIP checks the per-IP budget.
func (s *Service) AllowIP(ip string) (bool, int) {
	return s.ip.Allow("ip:" + ip)
}

// Sweep clears expired windows on both limiters and returns the total
// removed.
func (s *Service) Sweep() int {
	removed := s.user.Sweep() + s.ip.Sweep()
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("swept expired rate limit windows")
	}
	return removed
}

// Tracked reports how many keys hold windows across both limiters.
func (s *Service) Tracked() int {
	return s.user.Len() + s.ip.Len()
}
