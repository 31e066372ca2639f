package countdown

import "time"

// Tier is an urgency bucket. TierOverdue is not one of the ordered tiers.
type Tier string

const (
	TierOverdue Tier = "OVERDUE"
	TierRed     Tier = "RED"
	TierOrange  Tier = "ORANGE"
	TierYellow  Tier = "YELLOW"
	TierGreen   Tier = "GREEN"
	TierCyan    Tier = "CYAN"
	TierBlue    Tier = "BLUE"
	TierPurple  Tier = "PURPLE"
)

const (
	secondsPerDay  int64 = 86400
	secondsPerYear int64 = 365 * secondsPerDay
)

// Upper bounds are exclusive and use the fixed 86400 s day and 365 day year.
var tierBounds = []struct {
	upper int64
	tier  Tier
}{
	{secondsPerDay, TierRed},
	{7 * secondsPerDay, TierOrange},
	{30 * secondsPerDay, TierYellow},
	{90 * secondsPerDay, TierGreen},
	{secondsPerYear, TierCyan},
	{3 * secondsPerYear, TierBlue},
}

// Tiers lists the ordered tiers from most to least urgent.
var Tiers = []Tier{TierRed, TierOrange, TierYellow, TierGreen, TierCyan, TierBlue, TierPurple}

// Classify maps remaining whole seconds to a tier.
func Classify(remainingSeconds int64) Tier {
	if remainingSeconds < 0 {
		return TierOverdue
	}
	for _, b := range tierBounds {
		if remainingSeconds < b.upper {
			return b.tier
		}
	}
	return TierPurple
}

// Rank orders tiers by urgency: 0 for OVERDUE, 1 for RED ... 7 for PURPLE, -1 if unknown.
func (t Tier) Rank() int {
	if t == TierOverdue {
		return 0
	}
	for i, v := range Tiers {
		if v == t {
			return i + 1
		}
	}
	return -1
}

// AtLeast reports whether t is as urgent as other or more. OVERDUE counts as most urgent.
func (t Tier) AtLeast(other Tier) bool {
	r := t.Rank()
	return r >= 0 && r <= other.Rank()
}

// RemainingSeconds is due - now in whole seconds, truncated toward zero.
// Works on Unix seconds so spans past time.Duration's ~292 year range stay exact.
func RemainingSeconds(due, now time.Time) int64 {
	secs := due.Unix() - now.Unix()
	nanos := due.Nanosecond() - now.Nanosecond()
	switch {
	case secs > 0 && nanos < 0:
		secs--
	case secs < 0 && nanos > 0:
		secs++
	}
	return secs
}
