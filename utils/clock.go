package utils

import "time"

// Clock stamps every timestamp written by the ledger and association store.
// Components receive it explicitly so tests can pin time.
type Clock func() time.Time

// NewClock returns the system clock truncated to microseconds, the precision
// both MySQL DATETIME(6) and Postgres timestamps keep.
func NewClock() Clock {
	return func() time.Time {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
}

// FixedClock always returns t (truncated the same way as NewClock).
func FixedClock(t time.Time) Clock {
	t = t.UTC().Truncate(time.Microsecond)
	return func() time.Time { return t }
}

// Now is nil-safe; a nil Clock falls back to the system clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return c()
}
