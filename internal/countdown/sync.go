package countdown

import (
	"fmt"
	"time"
)

// Offset is the client half of the time sync: server_now - local_now, taken from
// the freshest server sample seen. The zero value has no sample yet.
type Offset struct {
	delta    time.Duration
	sampleAt time.Time
	known    bool
}

// Observe replaces the offset with one derived from serverNow. Samples older than
// the one already applied are ignored; the offset is never averaged.
func (o *Offset) Observe(serverNow, localNow time.Time) bool {
	if o.known && serverNow.Before(o.sampleAt) {
		return false
	}
	o.delta = serverNow.Sub(localNow)
	o.sampleAt = serverNow
	o.known = true
	return true
}

// ObserveRaw parses an RFC 3339 server_now. A missing or malformed sample keeps the
// last-known offset and reports the problem.
func (o *Offset) ObserveRaw(serverNow string, localNow time.Time) error {
	if serverNow == "" {
		return fmt.Errorf("observe offset: missing server_now")
	}
	t, err := time.Parse(time.RFC3339Nano, serverNow)
	if err != nil {
		return fmt.Errorf("observe offset: %w", err)
	}
	o.Observe(t, localNow)
	return nil
}

func (o Offset) Known() bool {
	return o.known
}

func (o Offset) Duration() time.Duration {
	return o.delta
}

// Now projects localNow onto the server timeline.
func (o Offset) Now(localNow time.Time) time.Time {
	return localNow.Add(o.delta).UTC()
}

// Countdown is one rendered frame of a timer.
type Countdown struct {
	Due              time.Time
	RemainingSeconds int64
	Tier             Tier
	Label            string
}

// Project computes the frame for due at adjustedNow. Every frame is derived from
// absolute instants only.
func Project(due, adjustedNow time.Time) Countdown {
	remaining := RemainingSeconds(due, adjustedNow)
	return Countdown{
		Due:              due,
		RemainingSeconds: remaining,
		Tier:             Classify(remaining),
		Label:            FormatRemaining(remaining),
	}
}
