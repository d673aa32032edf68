package sim

import "time"

// Clock maps real elapsed time onto simulated time with a scale factor, so a
// full day of scheduling can be replayed in minutes.
type Clock struct {
	base  time.Time
	start time.Time
	scale float64
	nowFn func() time.Time
}

// NewClock starts a simulated clock at base running at scale times real time.
func NewClock(base time.Time, scale float64) *Clock {
	if scale <= 0 {
		scale = 1
	}
	c := &Clock{base: base, scale: scale, nowFn: time.Now}
	c.start = c.nowFn()
	return c
}

func (c *Clock) Now() time.Time {
	elapsed := c.nowFn().Sub(c.start)
	return c.base.Add(time.Duration(float64(elapsed) * c.scale))
}
