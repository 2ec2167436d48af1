package ledger

import "time"

// Clock supplies ledger time. Every time-dependent rule (liquidation
// eligibility, due dates) is a pure predicate over the value it returns, so
// tests drive the lifecycle by advancing a manual clock rather than
// sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock used by the API server and workers.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a settable clock for tests.
type ManualClock struct {
	Current time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{Current: start}
}

func (c *ManualClock) Now() time.Time { return c.Current }

// Advance moves ledger time forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.Current = c.Current.Add(d) }
