package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	v   T
	exp time.Time
}

// TTLCache is an in-process cache with lazy expiry checked on read.
// It is backed by sync.Map so a write for one key never blocks reads of
// other keys. The clock is injectable for tests.
type TTLCache[T any] struct {
	m   sync.Map // string -> entry[T]
	ttl time.Duration
	now func() time.Time
}

func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (c *TTLCache[T]) WithNow(now func() time.Time) *TTLCache[T] {
	c.now = now
	return c
}

func (c *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	raw, ok := c.m.Load(key)
	if !ok {
		return zero, false
	}
	e := raw.(entry[T])
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.m.Delete(key)
		return zero, false
	}
	return e.v, true
}

func (c *TTLCache[T]) Put(key string, v T) {
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.m.Store(key, entry[T]{v: v, exp: exp})
}

func (c *TTLCache[T]) Invalidate(key string) {
	c.m.Delete(key)
}

// Purge drops every entry. Used on teardown.
func (c *TTLCache[T]) Purge() {
	c.m.Range(func(k, _ any) bool {
		c.m.Delete(k)
		return true
	})
}
