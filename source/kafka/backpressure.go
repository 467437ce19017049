package kafka

import (
	"context"
	"sync"
	"time"
)

// Controller is a token bucket bounding how many frames the consumer may hold
// before the sinks catch up. Tokens come back through Release and through a
// periodic refill.
type Controller struct {
	capacity int64
	refill   int64

	mu     sync.Mutex
	cond   *sync.Cond
	tokens int64
	closed bool
	stop   chan struct{}
}

func NewController(capacity, refill int64, tick time.Duration) *Controller {
	c := &Controller{
		capacity: capacity,
		refill:   refill,
		tokens:   capacity,
		stop:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	if refill > 0 && tick > 0 {
		go c.refillLoop(tick)
	}
	return c
}

func (c *Controller) refillLoop(tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.Release(c.refill)
		}
	}
}

// Acquire takes one token, waiting until one is available or ctx ends.
func (c *Controller) Acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.tokens == 0 && !c.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return context.Canceled
	}
	c.tokens--
	return nil
}

// TryAcquire takes n tokens without waiting.
func (c *Controller) TryAcquire(n int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens < n {
		return false
	}
	c.tokens -= n
	return true
}

// Release returns n tokens, capped at capacity.
func (c *Controller) Release(n int64) {
	c.mu.Lock()
	c.tokens = min(c.tokens+n, c.capacity)
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Available reports the tokens currently free.
func (c *Controller) Available() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Close stops the refill loop and wakes every waiter.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()
	c.cond.Broadcast()
}
