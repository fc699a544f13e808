package normalize

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/lotwise/lotwise/internal/domain"
)

const (
	defaultCacheSize = 10_000
	defaultCacheTTL  = 30 * 24 * time.Hour
)

type cacheEntry struct {
	key       string
	product   *domain.NormalizedProduct
	expiresAt time.Time
}

// lruCache memoizes normalization results. Normalizing the same title with
// the same hints is deterministic (heuristic) or expensive (AI), so entries
// live until the TTL passes or the map fills.
type lruCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List // front is most recently used
	items   map[string]*list.Element
	now     func() time.Time
}

func newLRUCache(maxSize int, ttl time.Duration) *lruCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &lruCache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

func (c *lruCache) get(key string) (*domain.NormalizedProduct, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.product, true
}

func (c *lruCache) put(key string, product *domain.NormalizedProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.product = product
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, product: product, expiresAt: expiresAt})
	for len(c.items) > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CacheKey derives the memoization key for a normalization request from the
// title and every input that can change its outcome.
func CacheKey(req domain.NormalizeRequest) string {
	fields := []string{
		strings.ToLower(strings.TrimSpace(req.RawTitle)),
		strings.ToLower(strings.TrimSpace(req.Locale)),
		strings.ToLower(strings.TrimSpace(req.SiteDomain)),
		strings.ToLower(strings.TrimSpace(req.BrandHint)),
		strings.ToLower(strings.TrimSpace(req.ModelHint)),
		string(req.CategoryHint),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
