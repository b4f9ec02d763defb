package scrape

import "time"

// clock abstracts wall time and sleeping so that pacing and backoff can be
// simulated deterministically in tests.
type clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// realClock is the default clock backed by the time package.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
