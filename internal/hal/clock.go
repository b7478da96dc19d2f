package hal

import "time"

// Clock is the time source every timing-sensitive component is built on.
// Production uses SystemClock; tests use haltest.FakeClock so pulse widths
// and waits are deterministic.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

// spinThreshold is the longest delay SystemClock busy-waits for. The Go
// scheduler cannot honour sleeps in the tens of microseconds, which is the
// granularity of the rangefinder trigger and the display enable pulse.
const spinThreshold = 2 * time.Millisecond

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses for d. Short delays spin on the monotonic clock.
func (SystemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// After waits for d and then sends the current time on the returned channel.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
