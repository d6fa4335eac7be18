package lifecycle

import (
	"sync"
	"time"
)

// ticker is the subset of *time.Ticker the progress loop needs.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func newRealTicker(d time.Duration) ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// startTicker runs the progress simulation for generation gen until the
// returned stop function is called or the controller closes.
func (c *Controller) startTicker(gen uint64) func() {
	t := c.newTicker(c.cfg.ProgressInterval)
	done := make(chan struct{})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-c.baseCtx.Done():
				return
			case <-t.C():
				c.tick(gen)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// tick advances simulated progress by one step, never past the cap and
// never backwards.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) || !c.job.Status.Active() {
		c.mu.Unlock()
		return
	}
	next := c.job.Progress + c.cfg.ProgressStep
	if next > c.cfg.ProgressCap {
		next = c.cfg.ProgressCap
	}
	if next <= c.job.Progress {
		c.mu.Unlock()
		return
	}
	c.job.Progress = next
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}
