package countdown

import (
	"strconv"
	"strings"
)

const (
	MarkerOverdue          = "overdue"
	MarkerUnderAMinute     = "under a minute"
	displaySecondsPerMonth = 30 * secondsPerDay
)

// FormatRemaining renders a countdown with coarse display units: 365 day years,
// 30 day months, then days, hours and minutes. Zero units are omitted and seconds
// are never shown.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		return MarkerOverdue
	}
	if seconds < 60 {
		return MarkerUnderAMinute
	}

	units := []struct {
		size   int64
		suffix string
	}{
		{secondsPerYear, "y"},
		{displaySecondsPerMonth, "mo"},
		{secondsPerDay, "d"},
		{3600, "h"},
		{60, "m"},
	}

	parts := make([]string, 0, len(units))
	rest := seconds
	for _, u := range units {
		if v := rest / u.size; v > 0 {
			parts = append(parts, strconv.FormatInt(v, 10)+u.suffix)
			rest -= v * u.size
		}
	}
	return strings.Join(parts, " ")
}
