package gate

import (
	"sync"
	"time"
)

// Countdown is a cancellable repeating-tick timer. At most one run is
// active: Start cancels the previous run before installing the new one, so
// two overlapping countdowns can never both mutate gate state.
type Countdown struct {
	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
}

func NewCountdown(interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{interval: interval}
}

// Start cancels any running countdown and begins a new one of n ticks.
// onTick receives the remaining count after each tick, ending at 0.
func (c *Countdown) Start(n int, onTick func(remaining int)) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	interval := c.interval
	c.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		remaining := n
		for remaining > 0 {
			select {
			case <-t.C:
				remaining--
				onTick(remaining)
			case <-stop:
				return
			}
		}
	}()
}

func (c *Countdown) Cancel() {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()
}
