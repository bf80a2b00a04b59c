package workflow

import (
	"context"
	"errors"
	"time"
)

// garmentsChangedLocked arms the auto-render timer after the garment list
// changes. Each change restarts the countdown.
func (c *Controller) garmentsChangedLocked() {
	c.updatedAt = time.Now()
	c.maybeScheduleLocked()
}

func (c *Controller) maybeScheduleLocked() {
	if c.closed || !c.autoRender {
		return
	}
	if c.state != StateIdle && c.state != StateComplete {
		return
	}
	if c.subject.IsZero() || len(c.garments) == 0 {
		c.stopTimerLocked()
		return
	}

	c.stopTimerLocked()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(seq) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// fire runs when the debounce window elapses. A timer that was stopped or
// superseded after its func started is ignored via the sequence check.
func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || c.timer == nil || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if !c.autoRender || c.state.Busy() || c.subject.IsZero() || len(c.garments) == 0 {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.renderTimeout)
	defer cancel()

	c.logger.Info("auto-render triggered")
	if err := c.Invoke(ctx); err != nil && !errors.Is(err, ErrStale) {
		c.logger.Warn("auto-render failed", "err", err)
	}
}
