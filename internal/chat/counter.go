package chat

import (
	"sync"
	"sync/atomic"
)

// Counter - number of admitted connections bounded by optional limit.
type Counter struct {
	mu  sync.Mutex
	n   int
	max int
}

// Slot - one admitted connection, must be released exactly once.
type Slot struct {
	counter  *Counter
	released atomic.Bool
}

// NewCounter - creates counter limited by max, negative max means no limit.
func NewCounter(max int) *Counter {
	return &Counter{max: max}
}

// TryAcquire - takes a slot if the limit is not reached yet.
func (c *Counter) TryAcquire() (*Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max >= 0 && c.n >= c.max {
		return nil, false
	}
	c.n++
	return &Slot{counter: c}, true
}

// Len - current number of taken slots.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Max - connection limit, negative when unbounded.
func (c *Counter) Max() int {
	return c.max
}

// Release - returns the slot, reports false if it was already returned.
func (s *Slot) Release() bool {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return false
	}
	s.counter.mu.Lock()
	s.counter.n--
	s.counter.mu.Unlock()
	return true
}
