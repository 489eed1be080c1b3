package access

import (
	"container/list"
	"sync"
	"time"
)

// ttlCache is a bounded LRU with per-entry TTL. Reads refresh recency, not
// age; expired entries are dropped on access. When full, the least recently
// used entry is evicted.
type ttlCache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

type ttlEntry[V any] struct {
	key    string
	value  V
	stored time.Time
}

func newTTLCache[V any](ttl time.Duration, capacity int) *ttlCache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &ttlCache[V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*ttlEntry[V])
	if time.Since(entry.stored) > c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*ttlEntry[V])
		entry.value = value
		entry.stored = time.Now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&ttlEntry[V]{key: key, value: value, stored: time.Now()})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*ttlEntry[V]).key)
	}
}

func (c *ttlCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

func (c *ttlCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
