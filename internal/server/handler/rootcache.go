package handler

import (
	"sync"
	"time"
)

// rootCache is a single-entry TTL cache for the current bare commitment,
// keyed by sequence length. The core log recomputes the tree in full on
// every read; this cache spares hot status/commitment endpoints that cost
// while staying bit-identical to recomputation, since the derivation is
// deterministic. Extension proofs never consult it.
type rootCache struct {
	mu         sync.Mutex
	size       int
	commitment string
	expiresAt  time.Time
	ttl        time.Duration
}

func newRootCache(ttl time.Duration) *rootCache {
	return &rootCache{ttl: ttl}
}

// get returns the cached commitment if it was computed for the same
// sequence length and has not expired.
func (c *rootCache) get(size int) (string, bool) {
	if c.ttl == 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitment == "" || c.size != size || time.Now().After(c.expiresAt) {
		return "", false
	}
	return c.commitment, true
}

// set stores the commitment computed for the given sequence length.
func (c *rootCache) set(size int, commitment string) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = size
	c.commitment = commitment
	c.expiresAt = time.Now().Add(c.ttl)
}

// invalidate drops the cached commitment; called after each append.
func (c *rootCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitment = ""
}
