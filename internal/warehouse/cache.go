package warehouse

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheItems bounds a CachingExecutor created with a size of zero.
const DefaultCacheItems = 1024

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
}

// HitRate returns hits as a percentage of lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// CachingExecutor memoizes catalog lookups for the lifetime of a run: the
// information_schema queries issued by ListTables and ListColumns and the
// LIMIT 0 probes issued by ProbeColumns. Other queries pass through.
// Concurrent identical lookups share one round trip. Cached results are
// shared between callers and must not be modified.
type CachingExecutor struct {
	next      Executor
	cacheable func(query string) bool
	maxItems  int
	group     singleflight.Group

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
	stats CacheStats
}

type cacheEntry struct {
	key    string
	result *Result
}

// NewCachingExecutor wraps next with an LRU of at most maxItems results.
func NewCachingExecutor(next Executor, maxItems int) *CachingExecutor {
	if maxItems <= 0 {
		maxItems = DefaultCacheItems
	}
	return &CachingExecutor{
		next:      next,
		cacheable: IsCatalogQuery,
		maxItems:  maxItems,
		items:     make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// IsCatalogQuery reports whether query only reads metadata.
func IsCatalogQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.Contains(q, "INFORMATION_SCHEMA.") || strings.HasSuffix(q, " LIMIT 0")
}

func (c *CachingExecutor) Query(ctx context.Context, query string) (*Result, error) {
	if !c.cacheable(query) {
		return c.next.Query(ctx, query)
	}

	key := cacheKey(query)
	if res, ok := c.get(key); ok {
		return res, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if res, ok := c.peek(key); ok {
			return res, nil
		}
		res, err := c.next.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		c.set(key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Stats returns a snapshot of the cache counters.
func (c *CachingExecutor) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Items = c.lru.Len()
	return s
}

func (c *CachingExecutor) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*cacheEntry).result, true
}

// peek looks key up without touching the counters.
func (c *CachingExecutor) peek(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		return el.Value.(*cacheEntry).result, true
	}
	return nil, false
}

func (c *CachingExecutor) set(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).result = res
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.maxItems {
		tail := c.lru.Back()
		c.lru.Remove(tail)
		delete(c.items, tail.Value.(*cacheEntry).key)
		c.stats.Evictions++
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, result: res})
}

// cacheKey normalises whitespace so formatting differences share an entry.
func cacheKey(query string) string {
	h := sha256.Sum256([]byte(strings.Join(strings.Fields(query), " ")))
	return hex.EncodeToString(h[:])
}
