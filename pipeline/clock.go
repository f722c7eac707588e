package pipeline

import "time"

// clock tracks the stream position from wall time while running.
type clock struct {
	now func() time.Time

	base    time.Duration
	since   time.Time
	running bool
}

func (c *clock) position() time.Duration {
	if !c.running {
		return c.base
	}

	return c.base + c.now().Sub(c.since)
}

func (c *clock) start() {
	if c.running {
		return
	}

	c.since = c.now()
	c.running = true
}

func (c *clock) stop() {
	if !c.running {
		return
	}

	c.base = c.position()
	c.running = false
}

func (c *clock) seek(pos time.Duration) {
	c.base = max(0, pos)
	if c.running {
		c.since = c.now()
	}
}

func (c *clock) reset() {
	c.base = 0
	c.running = false
}
