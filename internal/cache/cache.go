package cache

import (
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

type entry[V any] struct {
	value      V
	expiration time.Time
}

// TTLCache is a size-bounded LRU whose entries also expire after a fixed TTL.
type TTLCache[V any] struct {
	lru *lru.Cache[string, entry[V]]
	ttl time.Duration
	now func() time.Time
}

func New[V any](size int, ttl time.Duration) (*TTLCache[V], error) {
	l, err := lru.New[string, entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %v", err)
	}

	return &TTLCache[V]{
		lru: l,
		ttl: ttl,
		now: time.Now,
	}, nil
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	if e, ok := c.lru.Get(key); ok {
		if c.now().Before(e.expiration) {
			return e.value, true
		}
		c.lru.Remove(key)
	}

	var zero V
	return zero, false
}

// Add stores value; the LRU evicts the oldest entry when full.
func (c *TTLCache[V]) Add(key string, value V) {
	c.lru.Add(key, entry[V]{
		value:      value,
		expiration: c.now().Add(c.ttl),
	})
}

func (c *TTLCache[V]) Len() int {
	return c.lru.Len()
}

// Digest is the blake2b-256 of s.
func Digest(s string) [32]byte {
	return blake2b.Sum256([]byte(s))
}

// Key hex-encodes Digest so raw secrets and large texts never become map keys.
func Key(s string) string {
	sum := Digest(s)
	return hex.EncodeToString(sum[:])
}
