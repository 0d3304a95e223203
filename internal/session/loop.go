package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// startRefreshLoop runs the automatic refresh for the session of epoch. It
// reports false, without starting anything, when a logout has moved the
// epoch on. Logout bumps the epoch before stopping the loop under loopMu, so
// a loop started here is always seen by that stop.
func (c *Controller) startRefreshLoop(epoch uint64) bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.currentEpoch() != epoch {
		return false
	}
	if c.interval <= 0 || c.loopCancel != nil {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.loopCancel = cancel
	c.loopDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := c.refresh(ctx, triggerAuto)
				switch {
				case err == nil, errors.Is(err, context.Canceled):
				case errors.Is(err, ErrNoSession), errors.Is(err, ErrRefreshFailed):
					// logout has already cancelled ctx
					return
				default:
					c.log.Warn("Automatic refresh failed", zap.Error(err))
				}
			}
		}
	}()
	return true
}

// stopRefreshLoop cancels the loop without waiting for it, since it may be
// called from inside the loop itself.
func (c *Controller) stopRefreshLoop() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopCancel != nil {
		c.loopCancel()
		c.loopCancel = nil
	}
}

// RefreshLoopDone returns a channel closed when the current refresh loop
// exits, or nil when no loop was started.
func (c *Controller) RefreshLoopDone() <-chan struct{} {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.loopDone
}

// Close stops the refresh loop and waits for it to exit.
func (c *Controller) Close() {
	c.stopRefreshLoop()
	if done := c.RefreshLoopDone(); done != nil {
		<-done
	}
}
