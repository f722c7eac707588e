package engine

import "time"

// serverClock estimates the server clock from the time reported when
// enrolling, advanced by the local monotonic clock.
type serverClock struct {
	now func() time.Time

	valid      bool
	serverTime time.Duration
	localTime  time.Time
}

func (c *serverClock) sync(serverTime time.Duration) {
	c.valid = true
	c.serverTime = serverTime
	c.localTime = c.now()
}

func (c *serverClock) time() (time.Duration, bool) {
	if !c.valid {
		return 0, false
	}

	return c.serverTime + c.now().Sub(c.localTime), true
}

func (c *serverClock) reset() {
	c.valid = false
}
