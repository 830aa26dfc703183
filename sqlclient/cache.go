package sqlclient

import (
	"container/list"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type cacheEntry struct {
	key     string
	body    []byte
	expires time.Time
}

// Cache is a byte-bounded LRU of raw query responses keyed by query text.
// Entries older than the TTL are treated as missing.
type Cache struct {
	maxBytes    int64
	ttl         time.Duration
	currentSize atomic.Int64
	index       map[string]*list.Element
	lru         *list.List // front is most recently used
	mu          sync.Mutex
	now         func() time.Time
}

// NewCache creates a cache holding at most maxBytes of response bodies. A zero
// ttl keeps entries until they are evicted.
func NewCache(maxBytes int64, ttl time.Duration) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ttl:      ttl,
		index:    make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

func (c *Cache) Get(query string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[query]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.remove(elem)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return entry.body, true
}

// Put stores body for query. Bodies larger than the whole cache are skipped.
func (c *Cache) Put(query string, body []byte) {
	size := int64(len(body))
	if size > c.maxBytes {
		return
	}
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[query]; ok {
		entry := elem.Value.(*cacheEntry)
		c.currentSize.Add(size - int64(len(entry.body)))
		entry.body = append([]byte(nil), body...)
		entry.expires = expires
		c.lru.MoveToFront(elem)
	} else {
		entry := &cacheEntry{key: query, body: append([]byte(nil), body...), expires: expires}
		c.index[query] = c.lru.PushFront(entry)
		c.currentSize.Add(size)
	}
	c.evictIfNeeded()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.lru.Init()
	c.currentSize.Store(0)
}

func (c *Cache) evictIfNeeded() {
	for c.currentSize.Load() > c.maxBytes && c.lru.Len() > 0 {
		c.remove(c.lru.Back())
	}
}

func (c *Cache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.currentSize.Add(-int64(len(entry.body)))
	delete(c.index, entry.key)
	c.lru.Remove(elem)
}

// Stats returns cache statistics
func (c *Cache) Stats() (currentBytes int64, maxBytes int64, entryCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize.Load(), c.maxBytes, c.lru.Len()
}

// ParseSize parses size strings like "100mb", "1gb", "512KB" into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToLower(strings.TrimSpace(sizeStr))

	i := strings.IndexFunc(sizeStr, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i < 0 {
		n, err := strconv.ParseFloat(sizeStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size: %s", sizeStr)
		}
		return int64(n), nil
	}
	number, err := strconv.ParseFloat(sizeStr[:i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", sizeStr[:i])
	}

	switch strings.TrimSpace(sizeStr[i:]) {
	case "b", "byte", "bytes":
		return int64(number), nil
	case "kb", "kilobyte", "kilobytes":
		return int64(number * 1024), nil
	case "mb", "megabyte", "megabytes":
		return int64(number * 1024 * 1024), nil
	case "gb", "gigabyte", "gigabytes":
		return int64(number * 1024 * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown size unit: %s", sizeStr[i:])
	}
}
