// Package cache defines the key/TTL cache contract the rate limiter counts
// against, plus an in-process implementation. The client is constructed once
// at startup and passed by injection to its consumers; Close releases it on
// shutdown.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Client is the minimal contract the core consumes. An external cache
// service (Redis, Memcached) satisfies it just as well as the in-process
// implementation below.
type Client interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the client's resources.
	Close() error
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryClient is a process-local Client with lazy expiry on read plus a
// background sweep so abandoned keys do not accumulate.
type MemoryClient struct {
	mu      sync.RWMutex
	entries map[string]entry

	done chan struct{}
	once sync.Once

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryClient creates a client whose janitor sweeps expired entries
// every cleanupInterval (minimum 1s).
func NewMemoryClient(cleanupInterval time.Duration) *MemoryClient {
	if cleanupInterval < time.Second {
		cleanupInterval = time.Second
	}

	c := &MemoryClient{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor(cleanupInterval)
	return c
}

// Get returns the value for key, or ErrMiss when absent or expired.
func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		return "", ErrMiss
	}
	return e.value, nil
}

// Set stores value under key with the given TTL.
func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes key.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor. The client must not be used afterwards.
func (c *MemoryClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *MemoryClient) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
