package security

import (
	"sync"
	"time"

	"github.com/acolita/qemu-e2e/internal/adapters/realclock"
	"github.com/acolita/qemu-e2e/internal/ports"
)

// DefaultCacheTTL bounds how long a looked-up password stays in memory.
// Watch mode reruns scenarios repeatedly and should not hit the keyring
// (and possibly an unlock prompt) on every run.
const DefaultCacheTTL = 5 * time.Minute

// secretCache holds secrets per account with TTL-based expiration.
// Expired and cleared entries are wiped.
type secretCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   ports.Clock
	entries map[string]cacheEntry
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

func newSecretCache(ttl time.Duration, clock ports.Clock) *secretCache {
	if clock == nil {
		clock = realclock.New()
	}
	return &secretCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *secretCache) get(account string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[account]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) > c.ttl {
		c.dropLocked(account)
		return nil, false
	}

	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

func (c *secretCache) put(account string, data []byte) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked(account)
	stored := make([]byte, len(data))
	copy(stored, data)
	c.entries[account] = cacheEntry{data: stored, storedAt: c.clock.Now()}
}

func (c *secretCache) drop(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(account)
}

func (c *secretCache) dropLocked(account string) {
	if e, ok := c.entries[account]; ok {
		WipeBytes(e.data)
		delete(c.entries, account)
	}
}

func (c *secretCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
