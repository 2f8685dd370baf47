package hybrid

import (
	"log/slog"
	"sync"
)

// Cache keeps one coordinator alive across end-user requests so expensive
// providers survive between conversions. The coordinator is keyed by the
// config fingerprint; a request with a new fingerprint tears the old
// instance down before building a new one. This is the only place the
// design trades memory for latency.
type Cache struct {
	mu          sync.Mutex
	fingerprint string
	coordinator *Coordinator
}

// NewCache returns an empty coordinator cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns a coordinator for the config, reusing the cached instance when
// the fingerprint matches.
func (c *Cache) Get(cfg Config) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := cfg.Fingerprint()
	if c.coordinator != nil && c.fingerprint == fp {
		slog.Debug("Reusing cached coordinator", "fingerprint", fp)
		return c.coordinator
	}

	if c.coordinator != nil {
		slog.Info("Configuration changed, tearing down cached coordinator",
			"old", c.fingerprint, "new", fp)
		c.coordinator.Cleanup()
	}

	c.coordinator = New(cfg)
	c.fingerprint = fp
	return c.coordinator
}

// Current returns the cached coordinator and its fingerprint without
// constructing anything; nil when the cache is empty.
func (c *Cache) Current() (*Coordinator, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coordinator, c.fingerprint
}

// Close releases the cached coordinator, if any. Safe to call repeatedly.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coordinator != nil {
		c.coordinator.Cleanup()
		c.coordinator = nil
		c.fingerprint = ""
	}
}
