package terminal

import (
	"sync"
	"time"
)

// Countdown is a single cancellable timer. Each countdown owns exactly one
// underlying timer; starting again replaces the previous run, so rapid state
// transitions cannot leak timers.
type Countdown struct {
	mu       sync.Mutex
	duration time.Duration
	fire     func()

	timer    *time.Timer
	deadline time.Time
}

func NewCountdown(duration time.Duration, fire func()) *Countdown {
	return &Countdown{duration: duration, fire: fire}
}

// Start arms the countdown, replacing any run already in progress.
func (c *Countdown) Start() {
	c.StartFor(c.duration)
}

// StartFor arms the countdown with a one-off duration.
func (c *Countdown) StartFor(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.deadline = time.Now().Add(duration)
	c.timer = time.AfterFunc(duration, func() {
		c.mu.Lock()
		c.timer = nil
		c.deadline = time.Time{}
		c.mu.Unlock()
		c.fire()
	})
}

// Stop disarms the countdown. Stopping an idle countdown is a no-op.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.deadline = time.Time{}
}

// Reset restarts a running countdown from its full duration. A stopped
// countdown stays stopped.
func (c *Countdown) Reset() {
	c.mu.Lock()
	running := c.timer != nil
	c.mu.Unlock()

	if running {
		c.Start()
	}
}

// Remaining reports how long until the countdown fires, zero when idle.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer == nil {
		return 0
	}
	if d := time.Until(c.deadline); d > 0 {
		return d
	}
	return 0
}

// Running reports whether the countdown is armed.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}
