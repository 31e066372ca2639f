package countdown

import "time"

// Clock is the only source of "now" for server-side computations.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c).UTC()
}

// TickInterval is the fixed cadence of every countdown display.
const TickInterval = time.Second

// LocalClock reads the client's own clock. It defaults to time.Now.
type LocalClock func() time.Time
