package countdown

import (
	"fmt"
	"time"
)

// EffectiveDue returns the instant countdown and urgency are computed against:
// the stored date for one-off events, the next unexpired occurrence otherwise.
func EffectiveDue(stored time.Time, rule Rule, reference time.Time) (time.Time, error) {
	switch {
	case rule == RuleNone:
		return stored.UTC(), nil
	case !rule.Valid():
		return time.Time{}, fmt.Errorf("effective due: %w: %q", ErrInvalidRule, rule)
	}

	due, err := Advance(stored, rule, reference)
	if err != nil {
		return time.Time{}, fmt.Errorf("effective due: %w", err)
	}
	return due, nil
}

// IsStale reports whether a cached next occurrence must be recomputed before it
// is exposed at reference.
func IsStale(cached *time.Time, reference time.Time) bool {
	return cached == nil || cached.Before(reference)
}

// Status is the per-event projection returned to clients.
type Status struct {
	EffectiveDue     time.Time
	RemainingSeconds int64
	Tier             Tier
}

func (s Status) IsOverdue() bool {
	return s.Tier == TierOverdue
}

// Resolve computes effective due, remaining seconds and tier as of now.
func Resolve(stored time.Time, rule Rule, now time.Time) (Status, error) {
	due, err := EffectiveDue(stored, rule, now)
	if err != nil {
		return Status{}, err
	}
	remaining := RemainingSeconds(due, now)
	return Status{
		EffectiveDue:     due,
		RemainingSeconds: remaining,
		Tier:             Classify(remaining),
	}, nil
}
