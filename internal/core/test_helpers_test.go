package core

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by registry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	reg := NewRegistry(Options{
		HeartbeatTimeout: 30 * time.Second,
		Now:              clock.Now,
	})
	return reg, clock
}
