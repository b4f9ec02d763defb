package scrape

import "time"

// fakeClock is a controllable clock for pacing and backoff tests. Sleep
// records the requested duration; time only moves when a test calls
// Advance, so sleeps are instantaneous and deterministic.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
}

// Advance moves the clock forward without sleeping.
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// lastSleep returns the most recent recorded sleep, or zero.
func (c *fakeClock) lastSleep() time.Duration {
	if len(c.slept) == 0 {
		return 0
	}
	return c.slept[len(c.slept)-1]
}
