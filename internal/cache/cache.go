package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const DefaultCapacity = 256

var (
	ErrCacheMiss = errors.New("cache: miss")
	ErrClosed    = errors.New("cache: closed")
)

// ReadFunc loads a value on a cache miss.
type ReadFunc[K comparable, V any] func(key K) (V, error)

// WriteFunc persists a value before it is cached.
type WriteFunc[K comparable, V any] func(key K, value V) error

type Options[K comparable, V any] struct {
	// Capacity bounds the number of entries. The least recently used entry is
	// evicted first.
	Capacity int
	// TTL is the default time to live of an entry. Zero never expires.
	TTL time.Duration
	// PurgeInterval starts a background sweep of expired entries when > 0.
	PurgeInterval time.Duration
	Reader        ReadFunc[K, V]
	Writer        WriteFunc[K, V]
}

type entry[V any] struct {
	value   V
	expires time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Cache is a bounded, expiring key/value store with optional read-through and
// write-through hooks. Every operation holds a single lock, including the
// hook calls.
type Cache[K comparable, V any] struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[K, *entry[V]]
	ttl    time.Duration
	reader ReadFunc[K, V]
	writer WriteFunc[K, V]
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func New[K comparable, V any](opts Options[K, V]) (*Cache[K, V], error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	lru, err := simplelru.NewLRU[K, *entry[V]](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	c := &Cache[K, V]{
		lru:    lru,
		ttl:    opts.TTL,
		reader: opts.Reader,
		writer: opts.Writer,
		now:    time.Now,
	}

	if opts.PurgeInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go c.purgeLoop(ctx, opts.PurgeInterval)
	}

	return c, nil
}

// Get returns the cached value for key. On a miss the reader is invoked and
// its result cached. Without a reader a miss returns ErrCacheMiss.
func (c *Cache[K, V]) Get(key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if c.closed {
		return zero, ErrClosed
	}

	if e, ok := c.lru.Get(key); ok {
		if !e.expired(c.now()) {
			return e.value, nil
		}
		c.lru.Remove(key)
	}

	if c.reader == nil {
		return zero, ErrCacheMiss
	}

	value, err := c.reader(key)
	if err != nil {
		return zero, err
	}
	c.add(key, value, c.ttl)
	return value, nil
}

// Peek returns a cached, unexpired value without touching recency or the reader.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Peek(key)
	if !ok || e.expired(c.now()) {
		return zero, false
	}
	return e.value, true
}

// Put writes value through the writer, then caches it with the default TTL.
// A writer failure leaves the cache untouched.
func (c *Cache[K, V]) Put(key K, value V) error {
	return c.PutWithTTL(key, value, c.ttl)
}

func (c *Cache[K, V]) PutWithTTL(key K, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.writer != nil {
		if err := c.writer(key, value); err != nil {
			return err
		}
	}
	c.add(key, value, ttl)
	return nil
}

func (c *Cache[K, V]) add(key K, value V, ttl time.Duration) {
	e := &entry[V]{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
}

// Remove drops key from the cache. Durable storage is not touched.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Purge removes all expired entries and returns how many were dropped.
func (c *Cache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.expired(now) {
			c.lru.Remove(key)
			purged++
		}
	}
	return purged
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the cached keys from oldest to newest.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Close stops the background sweep. Further gets and puts fail with ErrClosed.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Cache[K, V]) purgeLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}
