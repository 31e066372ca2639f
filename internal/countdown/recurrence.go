package countdown

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRule           = errors.New("invalid recurrence rule")
	ErrPreconditionViolation = errors.New("recurrence precondition violated")
)

// Rule is a recurrence tag. The anchor date supplies day-of-month and month-day.
type Rule string

const (
	RuleNone    Rule = "none"
	RuleDaily   Rule = "daily"
	RuleWeekly  Rule = "weekly"
	RuleMonthly Rule = "monthly"
	RuleYearly  Rule = "yearly"
)

// ParseRule accepts the canonical tags and the short forms older rows were stored with.
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RuleNone, nil
	case "daily", "day":
		return RuleDaily, nil
	case "weekly", "week":
		return RuleWeekly, nil
	case "monthly", "month":
		return RuleMonthly, nil
	case "yearly", "year":
		return RuleYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRule, s)
	}
}

func (r Rule) Valid() bool {
	switch r {
	case RuleNone, RuleDaily, RuleWeekly, RuleMonthly, RuleYearly:
		return true
	}
	return false
}

func (r Rule) IsRecurring() bool {
	return r != RuleNone && r.Valid()
}

// Advance returns the earliest occurrence of rule applied to anchor that is not
// before reference. An occurrence equal to reference is returned as-is.
func Advance(anchor time.Time, rule Rule, reference time.Time) (time.Time, error) {
	anchor = anchor.UTC()
	reference = reference.UTC()

	switch rule {
	case RuleNone:
		return time.Time{}, fmt.Errorf("advance: %w: rule none has no occurrences", ErrPreconditionViolation)
	case RuleDaily:
		return advanceDays(anchor, 1, reference), nil
	case RuleWeekly:
		return advanceDays(anchor, 7, reference), nil
	case RuleMonthly:
		return advanceCalendar(anchor, reference, monthOccurrence, monthsBetween), nil
	case RuleYearly:
		return advanceCalendar(anchor, reference, yearOccurrence, yearsBetween), nil
	default:
		return time.Time{}, fmt.Errorf("advance: %w: %q", ErrInvalidRule, rule)
	}
}

// Occurrences lists the next n occurrences at or after from.
func Occurrences(anchor time.Time, rule Rule, from time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	first, err := Advance(anchor, rule, from)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, n)
	out = append(out, first)
	for len(out) < n {
		// Step one nanosecond past the last occurrence so equality does not repeat it.
		next, err := Advance(anchor, rule, out[len(out)-1].Add(time.Nanosecond))
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// advanceDays jumps by whole periods in one step. In UTC a calendar day is always
// 24h, so AddDate is exact and avoids time.Duration overflow on large gaps.
func advanceDays(anchor time.Time, periodDays int, reference time.Time) time.Time {
	if !reference.After(anchor) {
		return anchor
	}

	periodSec := int64(periodDays) * 86400
	diff := reference.Unix() - anchor.Unix()
	k := diff / periodSec

	next := anchor.AddDate(0, 0, int(k)*periodDays)
	for next.Before(reference) {
		next = next.AddDate(0, 0, periodDays)
	}
	return next
}

type occurrenceFunc func(anchor time.Time, n int) time.Time
type distanceFunc func(anchor, reference time.Time) int

// advanceCalendar starts one unit before the calendar distance to reference and
// corrects forward. Each candidate is derived from the anchor, never from the
// previous (possibly clamped) candidate.
func advanceCalendar(anchor, reference time.Time, occ occurrenceFunc, dist distanceFunc) time.Time {
	if !reference.After(anchor) {
		return anchor
	}

	n := dist(anchor, reference) - 1
	if n < 0 {
		n = 0
	}

	next := occ(anchor, n)
	for next.Before(reference) {
		n++
		next = occ(anchor, n)
	}
	return next
}

func monthsBetween(anchor, reference time.Time) int {
	return (reference.Year()-anchor.Year())*12 + int(reference.Month()) - int(anchor.Month())
}

func yearsBetween(anchor, reference time.Time) int {
	return reference.Year() - anchor.Year()
}

// monthOccurrence shifts anchor by n calendar months, clamping the day to the
// target month's last day.
func monthOccurrence(anchor time.Time, n int) time.Time {
	total := int(anchor.Month()) - 1 + n
	year := anchor.Year() + total/12
	month := time.Month(total%12 + 1)
	return atDay(anchor, year, month, anchor.Day())
}

// yearOccurrence shifts anchor by n years. Feb 29 lands on Feb 28 outside leap years.
func yearOccurrence(anchor time.Time, n int) time.Time {
	return atDay(anchor, anchor.Year()+n, anchor.Month(), anchor.Day())
}

func atDay(anchor time.Time, year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	h, m, s := anchor.Clock()
	return time.Date(year, month, day, h, m, s, anchor.Nanosecond(), time.UTC)
}

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	switch month {
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if IsLeap(year) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
