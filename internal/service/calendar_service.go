package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/storage"
)

const (
	productID = "-//Countdowns//Countdowns//EN"

	// How many explicit dates are listed for events RRULE cannot describe.
	monthlyRDates = 36
	yearlyRDates  = 10

	calendarTimeout = 30 * time.Second
)

// CalendarStore is a remote calendar collection (CalDAV).
type CalendarStore interface {
	Put(ctx context.Context, uid string, cal *ical.Calendar) error
	Delete(ctx context.Context, uid string) error
}

// CalendarService renders events as iCalendar and mirrors them to a CalDAV store.
type CalendarService struct {
	storage *storage.Storage
	clock   countdown.Clock
	store   CalendarStore
}

func NewCalendarService(s *storage.Storage, clock countdown.Clock, store CalendarStore) *CalendarService {
	if clock == nil {
		clock = countdown.SystemClock{}
	}
	return &CalendarService{storage: s, clock: clock, store: store}
}

func (s *CalendarService) IsConfigured() bool {
	return s.store != nil
}

// Feed builds a calendar with one VEVENT per event of the user.
func (s *CalendarService) Feed(userID int64) (*ical.Calendar, error) {
	events, err := s.storage.ListEventsByUser(userID, "")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	now := s.clock.Now()
	cal := newCalendar()
	for _, e := range events {
		comp, err := s.EventComponent(e, now)
		if err != nil {
			log.Printf("Error rendering event %d: %v", e.ID, err)
			continue
		}
		cal.Children = append(cal.Children, comp)
	}
	return cal, nil
}

func (s *CalendarService) WriteFeed(w io.Writer, userID int64) error {
	cal, err := s.Feed(userID)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// EventComponent renders e as a VEVENT. Recurrences whose every occurrence RRULE
// reproduces get an RRULE; day-clamped ones get explicit RDATEs instead.
func (s *CalendarService) EventComponent(e *domain.Event, now time.Time) (*ical.Component, error) {
	anchor := e.EventDate.UTC()

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, eventUID(e))
	vevent.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		vevent.Props.SetText(ical.PropDescription, e.Description)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStart, anchor)
	if !e.UpdatedAt.IsZero() {
		vevent.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
	}

	if !e.IsRecurring() {
		return vevent.Component, nil
	}

	if !isClamped(anchor, e.Repeat) {
		opt, err := recurrenceOption(anchor, e.Repeat)
		if err != nil {
			return nil, err
		}
		vevent.Props.SetRecurrenceRule(opt)
		return vevent.Component, nil
	}

	n := monthlyRDates
	if e.Repeat == countdown.RuleYearly {
		n = yearlyRDates
	}
	from := anchor.Add(time.Nanosecond)
	if window := now.AddDate(-1, 0, 0); window.After(from) {
		from = window
	}
	dates, err := countdown.Occurrences(anchor, e.Repeat, from, n)
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		prop := ical.NewProp(ical.PropRecurrenceDates)
		prop.SetDateTime(d)
		vevent.Props.Add(prop)
	}
	return vevent.Component, nil
}

// SyncEvent pushes e to the CalDAV store, assigning a UID on first push.
func (s *CalendarService) SyncEvent(e *domain.Event) error {
	if !s.IsConfigured() {
		return nil
	}

	if e.CalDAVUID == "" {
		e.CalDAVUID = uuid.NewString()
		if err := s.storage.UpdateEventCalDAVUID(e.ID, e.CalDAVUID); err != nil {
			return fmt.Errorf("save caldav uid: %w", err)
		}
	}

	comp, err := s.EventComponent(e, s.clock.Now())
	if err != nil {
		return err
	}
	cal := newCalendar()
	cal.Children = append(cal.Children, comp)

	ctx, cancel := context.WithTimeout(context.Background(), calendarTimeout)
	defer cancel()
	return s.store.Put(ctx, e.CalDAVUID, cal)
}

func (s *CalendarService) RemoveEvent(e *domain.Event) error {
	if !s.IsConfigured() || e.CalDAVUID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), calendarTimeout)
	defer cancel()
	return s.store.Delete(ctx, e.CalDAVUID)
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

func eventUID(e *domain.Event) string {
	if e.CalDAVUID != "" {
		return e.CalDAVUID
	}
	return fmt.Sprintf("event-%d@countdowns", e.ID)
}

// isClamped reports whether some occurrences land on a clamped day: RRULE would
// skip those months or years instead of moving them to the last day.
func isClamped(anchor time.Time, rule countdown.Rule) bool {
	switch rule {
	case countdown.RuleMonthly:
		return anchor.Day() > 28
	case countdown.RuleYearly:
		return anchor.Month() == time.February && anchor.Day() == 29
	}
	return false
}

func recurrenceOption(anchor time.Time, rule countdown.Rule) (*rrule.ROption, error) {
	var freq rrule.Frequency
	switch rule {
	case countdown.RuleDaily:
		freq = rrule.DAILY
	case countdown.RuleWeekly:
		freq = rrule.WEEKLY
	case countdown.RuleMonthly:
		freq = rrule.MONTHLY
	case countdown.RuleYearly:
		freq = rrule.YEARLY
	default:
		return nil, fmt.Errorf("recurrence rule: %w: %q", countdown.ErrInvalidRule, rule)
	}
	return &rrule.ROption{Freq: freq, Dtstart: anchor}, nil
}
