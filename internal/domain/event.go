package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tazhate/countdowns/internal/countdown"
)

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
)

// Event is a user-owned countdown target. NextOccurrence caches the effective due
// of recurring events and is only a cache: it is recomputed whenever it is stale.
type Event struct {
	ID             int64
	UserID         int64
	Title          string
	Description    string
	EventDate      time.Time
	Repeat         countdown.Rule
	Timezone       string
	NextOccurrence *time.Time
	CalDAVUID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (e *Event) IsRecurring() bool {
	return e.Repeat.IsRecurring()
}

// Validate checks the user-editable fields.
func (e *Event) Validate() error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	}
	if e.EventDate.IsZero() {
		return fmt.Errorf("event date is required")
	}
	if e.Repeat == "" {
		e.Repeat = countdown.RuleNone
	}
	if !e.Repeat.Valid() {
		return fmt.Errorf("%w: %q", countdown.ErrInvalidRule, e.Repeat)
	}
	if e.Timezone != "" {
		if _, err := time.LoadLocation(e.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", e.Timezone)
		}
	}
	return nil
}

// RepeatLabel returns a short human label for the recurrence.
func (e *Event) RepeatLabel() string {
	switch e.Repeat {
	case countdown.RuleDaily:
		return "every day"
	case countdown.RuleWeekly:
		return "every week"
	case countdown.RuleMonthly:
		return "every month"
	case countdown.RuleYearly:
		return "every year"
	default:
		return "once"
	}
}

// TierEmoji maps urgency tiers to the coloured markers used in chat messages.
func TierEmoji(t countdown.Tier) string {
	switch t {
	case countdown.TierRed:
		return "🔴"
	case countdown.TierOrange:
		return "🟠"
	case countdown.TierYellow:
		return "🟡"
	case countdown.TierGreen:
		return "🟢"
	case countdown.TierCyan:
		return "🩵"
	case countdown.TierBlue:
		return "🔵"
	case countdown.TierPurple:
		return "🟣"
	case countdown.TierOverdue:
		return "⚫"
	default:
		return "⚪"
	}
}
