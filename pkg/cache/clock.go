// This module implements a CLOCK (second-chance) eviction cache: a cheaper approximation of LRU
// that avoids moving list nodes on every Get. Slots are held in the package's LinkedList, walked
// by a hand pointer; each slot carries a "referenced" bit, cleared by the hand as it passes and
// set again by Get. Eviction takes the first slot the hand finds with a clear bit.

package cache

import (
	"sync"
	"time"

	"github.com/driftkv/lsmsst/pkg/klog"
)

type clockEntry[K comparable, V any] struct {
	key        K
	value      V
	referenced bool
	expiresAt  time.Time // zero means no expiry
}

// Clock is a fixed-capacity, thread-safe Layer using CLOCK (second-chance) eviction with
// per-entry TTL. A background goroutine periodically sweeps expired entries so they don't
// linger until an eviction or lookup happens to touch them.
type Clock[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	list     LinkedList[*clockEntry[K, V]]
	index    map[K]*LinkedListNode[*clockEntry[K, V]]
	hand     *LinkedListNode[*clockEntry[K, V]]

	reapInterval time.Duration
	stopReaper   chan struct{}
	reaperOnce   sync.Once
}

// NewClock returns a Clock cache with room for capacity entries. reapInterval controls how often
// the background reaper sweeps for expired entries; a non-positive value disables the reaper.
func NewClock[K comparable, V any](capacity int, reapInterval time.Duration) *Clock[K, V] {
	if capacity <= 0 {
		klog.Invariant("cache", "non_positive_capacity", "Clock cache built with non-positive capacity.",
			"capacity", capacity)
		capacity = 1
	}
	c := &Clock[K, V]{
		capacity:     capacity,
		index:        make(map[K]*LinkedListNode[*clockEntry[K, V]], capacity),
		reapInterval: reapInterval,
		stopReaper:   make(chan struct{}),
	}
	if reapInterval > 0 {
		go c.reapLoop()
	}
	return c
}

var _ Layer[int, int] = (*Clock[int, int])(nil)

// Get returns the cached value for key, clearing it out if it has expired since it was added.
func (c *Clock[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.isExpired(node.Value) {
		c.removeNode(node)
		var zero V
		return zero, false
	}
	node.Value.referenced = true
	return node.Value.value, true
}

// Add inserts or updates key with value and ttl (zero ttl means no expiry). It returns true if
// inserting key required evicting a different entry.
func (c *Clock[K, V]) Add(key K, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if node, ok := c.index[key]; ok {
		node.Value.value = value
		node.Value.expiresAt = expiresAt
		node.Value.referenced = true
		return false
	}

	evicted := false
	if c.list.Len() >= c.capacity {
		c.evictOne()
		evicted = true
	}
	node := c.list.PushBack(&clockEntry[K, V]{key: key, value: value, referenced: true, expiresAt: expiresAt})
	c.index[key] = node
	if c.hand == nil {
		c.hand = node
	}
	return evicted
}

// Keys returns a snapshot of all non-expired keys currently cached.
func (c *Clock[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.list.Len())
	for n := c.list.Front(); n != nil; n = n.Next() {
		if !c.isExpired(n.Value) {
			keys = append(keys, n.Value.key)
		}
	}
	return keys
}

// Purge removes every entry.
func (c *Clock[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list = LinkedList[*clockEntry[K, V]]{}
	c.index = make(map[K]*LinkedListNode[*clockEntry[K, V]], c.capacity)
	c.hand = nil
}

// Close stops the background reaper goroutine. A Clock with no reapInterval need not be closed.
func (c *Clock[K, V]) Close() {
	c.reaperOnce.Do(func() { close(c.stopReaper) })
}

// evictOne advances the hand, giving every referenced slot a second chance, until it finds an
// unreferenced (or expired) slot to remove.
func (c *Clock[K, V]) evictOne() {
	for {
		if c.hand == nil {
			c.hand = c.list.Front()
		}
		if c.hand == nil {
			return // empty list, nothing to evict
		}
		candidate := c.hand
		if c.isExpired(candidate.Value) || !candidate.Value.referenced {
			c.advanceHandPast(candidate)
			c.removeNode(candidate)
			return
		}
		candidate.Value.referenced = false
		c.advanceHandPast(candidate)
	}
}

// advanceHandPast moves the hand to the node following n, wrapping to the list front.
func (c *Clock[K, V]) advanceHandPast(n *LinkedListNode[*clockEntry[K, V]]) {
	if next := n.Next(); next != nil {
		c.hand = next
	} else {
		c.hand = c.list.Front()
	}
}

func (c *Clock[K, V]) removeNode(n *LinkedListNode[*clockEntry[K, V]]) {
	if c.hand == n {
		c.advanceHandPast(n)
		if c.hand == n {
			c.hand = nil // was the only node
		}
	}
	delete(c.index, n.Value.key)
	c.list.Remove(n)
}

func (c *Clock[K, V]) isExpired(e *clockEntry[K, V]) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func (c *Clock[K, V]) reapLoop() {
	ticker := time.NewTicker(c.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reapExpired()
		case <-c.stopReaper:
			return
		}
	}
}

func (c *Clock[K, V]) reapExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := c.list.Front(); n != nil; {
		next := n.Next()
		if c.isExpired(n.Value) {
			c.removeNode(n)
		}
		n = next
	}
}
