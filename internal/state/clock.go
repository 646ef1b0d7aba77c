package state

import "sync"

// Clock numbers model revisions. A follower model advances its clock to the
// revision of every change it replays so its numbering never runs backwards.
type Clock struct {
	counter uint64
	mu      sync.Mutex
}

// Tick increments the clock and returns the new value.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Update moves the clock forward to a received revision.
func (c *Clock) Update(rev uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev > c.counter {
		c.counter = rev
	}
}

// Now returns the current revision without advancing it.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}
