// Package otp holds the countdown shown while a one-time password is valid.
package otp

import (
	"context"
	"sync"
	"time"
)

// Countdown counts down from a validity period and calls onExpired once
// when it reaches zero. Restart begins a new period and re-arms the
// callback.
type Countdown struct {
	onExpired func()
	now       func() time.Time

	mu       sync.Mutex
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	expired  bool
}

// NewCountdown starts counting down from expiresIn. A non-positive period
// is already over, so onExpired fires right away.
func NewCountdown(expiresIn time.Duration, onExpired func()) *Countdown {
	c := &Countdown{onExpired: onExpired, now: time.Now}
	c.Restart(expiresIn)
	return c
}

// Restart begins a new period of expiresIn, e.g. after a new code was sent.
func (c *Countdown) Restart(expiresIn time.Duration) {
	if expiresIn < 0 {
		expiresIn = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.expired = false
	c.deadline = c.now().Add(expiresIn)
	c.timer = time.AfterFunc(expiresIn, func() { c.fire(gen) })
}

func (c *Countdown) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	c.mu.Unlock()

	if c.onExpired != nil {
		c.onExpired()
	}
}

// Remaining is the time left, rounded up to whole seconds for display.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expired {
		return 0
	}
	left := c.deadline.Sub(c.now())
	if left <= 0 {
		return 0
	}
	if rounded := left.Truncate(time.Second); rounded < left {
		return rounded + time.Second
	}
	return left
}

// Expired reports whether onExpired has fired for the current period.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Stop cancels the countdown without firing onExpired.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
}

// Ticks sends the remaining time every interval until it reaches zero or ctx
// ends, then closes the channel.
func (c *Countdown) Ticks(ctx context.Context, interval time.Duration) <-chan time.Duration {
	out := make(chan time.Duration, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			remaining := c.Remaining()
			select {
			case out <- remaining:
			case <-ctx.Done():
				return
			}
			if remaining == 0 {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
