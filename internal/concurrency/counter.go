// Package concurrency tracks how many request lifecycles are in flight so the
// hosting runtime can decide whether the process is idle.
package concurrency

import (
	"sync"
	"sync/atomic"
)

// Counter is a process-wide in-flight request counter.
//
// Increment and Decrement serialize their read-modify-write under a mutex.
// Snapshot and HasActiveRequests read an atomic mirror and never block, so an
// idle probe can poll them while lifecycles are starting and finishing.
type Counter struct {
	mu       sync.Mutex
	n        int64
	mirror   atomic.Int64
	onChange func(int64)
}

// Option configures a Counter.
type Option func(*Counter)

// WithOnChange installs a hook invoked with the new value after every
// Increment/Decrement. The hook runs while the counter lock is held, so it
// must be cheap and must not call back into the Counter.
func WithOnChange(fn func(int64)) Option {
	return func(c *Counter) { c.onChange = fn }
}

// New returns a zeroed Counter.
func New(opts ...Option) *Counter {
	c := &Counter{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Increment records the start of a lifecycle and returns the new value.
func (c *Counter) Increment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.mirror.Store(c.n)
	if c.onChange != nil {
		c.onChange(c.n)
	}
	return c.n
}

// Decrement records the end of a lifecycle and returns the new value.
// It panics if the counter would go negative, which means a lifecycle was
// released twice.
func (c *Counter) Decrement() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		panic("concurrency: negative in-flight counter")
	}
	c.n--
	c.mirror.Store(c.n)
	if c.onChange != nil {
		c.onChange(c.n)
	}
	return c.n
}

// Snapshot returns the value at the instant of the read. It may be stale by
// the time the caller looks at it.
func (c *Counter) Snapshot() int64 { return c.mirror.Load() }

// HasActiveRequests reports whether any lifecycle is in flight.
func (c *Counter) HasActiveRequests() bool { return c.mirror.Load() > 0 }
