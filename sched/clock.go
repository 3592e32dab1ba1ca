package sched

import (
	"sync"
	"time"
)

// Clock supplies the current tick.
type Clock interface {
	Now() Tick
}

type systemClock struct{ boot time.Time }

// NewSystemClock returns a clock counting milliseconds from its creation.
func NewSystemClock() Clock { return systemClock{boot: time.Now()} }

func (c systemClock) Now() Tick { return Ticks(time.Since(c.boot)) }

// ManualClock is advanced explicitly; used by tests and the simulator.
type ManualClock struct {
	mu sync.Mutex
	t  Tick
}

func (c *ManualClock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Set(t Tick) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d Tick) Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}
