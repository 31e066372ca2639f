package service

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/storage"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("access denied")
	ErrValidation = errors.New("validation failed")
)

// maxPastDate bounds how far in the past a new or edited event date may be.
const maxPastDate = 24 * time.Hour

// CalendarMirror receives event changes for an external calendar.
type CalendarMirror interface {
	SyncEvent(e *domain.Event) error
	RemoveEvent(e *domain.Event) error
}

// EventView is an event as of ServerNow, with the derived countdown fields.
type EventView struct {
	Event  *domain.Event
	Status countdown.Status
}

// DueLine renders the effective due in the event's timezone, else loc, else UTC.
func (v EventView) DueLine(loc *time.Location) string {
	if v.Event.Timezone != "" {
		if l, err := time.LoadLocation(v.Event.Timezone); err == nil {
			loc = l
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	due := v.Status.EffectiveDue.In(loc).Format("Mon 02 Jan 2006 15:04 MST")
	if v.Event.IsRecurring() {
		return due + ", " + v.Event.RepeatLabel()
	}
	return due
}

// ListOptions filters and pages List.
type ListOptions struct {
	Query          string
	IncludeOverdue bool
	Limit          int
	Offset         int
}

// EventPage is one page of views sharing a single server_now sample.
type EventPage struct {
	ServerNow  time.Time
	Items      []EventView
	NextCursor string
}

type EventInput struct {
	Title       string
	Description string
	EventDate   time.Time
	Repeat      countdown.Rule
	Timezone    string
}

// EventPatch carries optional updates; nil fields are left unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	EventDate   *time.Time
	Repeat      *countdown.Rule
	Timezone    *string
}

type EventService struct {
	storage *storage.Storage
	clock   countdown.Clock
	mirror  CalendarMirror
}

func NewEventService(s *storage.Storage, clock countdown.Clock) *EventService {
	if clock == nil {
		clock = countdown.SystemClock{}
	}
	return &EventService{storage: s, clock: clock}
}

// SetMirror enables mirroring of changes to an external calendar.
func (s *EventService) SetMirror(m CalendarMirror) {
	s.mirror = m
}

func (s *EventService) Now() time.Time {
	return s.clock.Now()
}

func (s *EventService) Create(userID int64, in EventInput) (*EventView, time.Time, error) {
	return s.create(userID, in, true)
}

// create inserts an event. Recurring events skip the past-date check when
// checkPast is false, since their effective due is advanced anyway.
func (s *EventService) create(userID int64, in EventInput, checkPast bool) (*EventView, time.Time, error) {
	now := s.clock.Now()
	e := &domain.Event{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		EventDate:   in.EventDate.UTC(),
		Repeat:      in.Repeat,
		Timezone:    in.Timezone,
	}
	if err := s.validate(e, now, checkPast || !e.Repeat.IsRecurring()); err != nil {
		return nil, now, err
	}
	if err := s.resetNextOccurrence(e, now); err != nil {
		return nil, now, err
	}

	if err := s.storage.CreateEvent(e); err != nil {
		return nil, now, fmt.Errorf("create event: %w", err)
	}
	s.mirrorSync(e)

	view, err := s.view(e, now)
	return view, now, err
}

// Get returns the event as seen by userID, refreshing a stale occurrence cache first.
func (s *EventService) Get(eventID, userID int64) (*EventView, time.Time, error) {
	now := s.clock.Now()
	e, err := s.owned(eventID, userID)
	if err != nil {
		return nil, now, err
	}
	if err := s.refresh(e, now); err != nil {
		return nil, now, err
	}
	view, err := s.view(e, now)
	return view, now, err
}

func (s *EventService) Update(eventID, userID int64, p EventPatch) (*EventView, time.Time, error) {
	now := s.clock.Now()
	e, err := s.owned(eventID, userID)
	if err != nil {
		return nil, now, err
	}

	anchorChanged := false
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Timezone != nil {
		e.Timezone = *p.Timezone
	}
	if p.EventDate != nil {
		e.EventDate = p.EventDate.UTC()
		anchorChanged = true
	}
	if p.Repeat != nil {
		e.Repeat = *p.Repeat
		anchorChanged = true
	}

	if err := s.validate(e, now, p.EventDate != nil); err != nil {
		return nil, now, err
	}
	if anchorChanged {
		if err := s.resetNextOccurrence(e, now); err != nil {
			return nil, now, err
		}
		if err := s.storage.UpdateEvent(e); err != nil {
			return nil, now, fmt.Errorf("update event: %w", err)
		}
	} else {
		if err := s.storage.UpdateEventDetails(e); err != nil {
			return nil, now, fmt.Errorf("update event: %w", err)
		}
		if err := s.refresh(e, now); err != nil {
			return nil, now, err
		}
	}
	s.mirrorSync(e)

	view, err := s.view(e, now)
	return view, now, err
}

func (s *EventService) Delete(eventID, userID int64) error {
	e, err := s.owned(eventID, userID)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteEvent(e.ID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if s.mirror != nil && e.CalDAVUID != "" {
		if err := s.mirror.RemoveEvent(e); err != nil {
			log.Printf("Error removing event %d from calendar: %v", e.ID, err)
		}
	}
	return nil
}

// List returns the user's events sorted by remaining time. Overdue events are
// dropped unless requested. NextCursor is the offset of the following page.
func (s *EventService) List(userID int64, opts ListOptions) (*EventPage, error) {
	now := s.clock.Now()
	events, err := s.storage.ListEventsByUser(userID, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	views, err := s.views(events, now)
	if err != nil {
		return nil, err
	}

	if !opts.IncludeOverdue {
		upcoming := views[:0]
		for _, v := range views {
			if !v.Status.IsOverdue() {
				upcoming = append(upcoming, v)
			}
		}
		views = upcoming
	}
	SortByRemaining(views)

	page := &EventPage{ServerNow: now}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Offset >= len(views) {
		page.Items = []EventView{}
		return page, nil
	}
	end := len(views)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
		page.NextCursor = strconv.Itoa(end)
	}
	page.Items = views[opts.Offset:end]
	return page, nil
}

// Upcoming returns every non-overdue event of the user, most urgent first.
func (s *EventService) Upcoming(userID int64) ([]EventView, time.Time, error) {
	page, err := s.List(userID, ListOptions{})
	if err != nil {
		return nil, time.Time{}, err
	}
	return page.Items, page.ServerNow, nil
}

// RefreshStale recomputes and persists the occurrence cache of every recurring
// event whose cache is missing or already past. It returns how many moved.
func (s *EventService) RefreshStale() (int, error) {
	now := s.clock.Now()
	events, err := s.storage.ListEventsDueBefore(now)
	if err != nil {
		return 0, fmt.Errorf("list stale events: %w", err)
	}

	moved := 0
	for _, e := range events {
		if !e.IsRecurring() {
			continue
		}
		before := e.NextOccurrence
		if err := s.refresh(e, now); err != nil {
			log.Printf("Error refreshing event %d: %v", e.ID, err)
			continue
		}
		if before == nil || !before.Equal(*e.NextOccurrence) {
			moved++
		}
	}
	return moved, nil
}

// SortByRemaining orders views by remaining seconds, ties by id.
func SortByRemaining(views []EventView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Status.RemainingSeconds, views[j].Status.RemainingSeconds
		if a != b {
			return a < b
		}
		return views[i].Event.ID < views[j].Event.ID
	})
}

func (s *EventService) views(events []*domain.Event, now time.Time) ([]EventView, error) {
	views := make([]EventView, 0, len(events))
	for _, e := range events {
		if err := s.refresh(e, now); err != nil {
			return nil, err
		}
		v, err := s.view(e, now)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *EventService) view(e *domain.Event, now time.Time) (*EventView, error) {
	due := e.EventDate
	if e.IsRecurring() && e.NextOccurrence != nil {
		due = *e.NextOccurrence
	}
	remaining := countdown.RemainingSeconds(due, now)
	return &EventView{
		Event: e,
		Status: countdown.Status{
			EffectiveDue:     due,
			RemainingSeconds: remaining,
			Tier:             countdown.Classify(remaining),
		},
	}, nil
}

// refresh recomputes a stale occurrence cache and persists it before the event
// is exposed. The store only accepts forward moves, so concurrent refreshes are safe.
func (s *EventService) refresh(e *domain.Event, now time.Time) error {
	if !e.IsRecurring() || !countdown.IsStale(e.NextOccurrence, now) {
		return nil
	}

	next, err := countdown.EffectiveDue(e.EventDate, e.Repeat, now)
	if err != nil {
		return fmt.Errorf("event %d: %w", e.ID, err)
	}

	if _, err := s.storage.AdvanceNextOccurrence(e.ID, next); err != nil {
		return fmt.Errorf("event %d: %w", e.ID, err)
	}
	e.NextOccurrence = &next
	return nil
}

func (s *EventService) resetNextOccurrence(e *domain.Event, now time.Time) error {
	if !e.IsRecurring() {
		e.NextOccurrence = nil
		return nil
	}
	next, err := countdown.EffectiveDue(e.EventDate, e.Repeat, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e.NextOccurrence = &next
	return nil
}

func (s *EventService) validate(e *domain.Event, now time.Time, checkDate bool) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if checkDate && e.EventDate.Before(now.Add(-maxPastDate)) {
		return fmt.Errorf("%w: event date cannot be more than 1 day in the past", ErrValidation)
	}
	return nil
}

func (s *EventService) owned(eventID, userID int64) (*domain.Event, error) {
	e, err := s.storage.GetEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if e == nil {
		return nil, ErrNotFound
	}
	if e.UserID != userID {
		return nil, ErrForbidden
	}
	return e, nil
}

func (s *EventService) mirrorSync(e *domain.Event) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SyncEvent(e); err != nil {
		log.Printf("Error syncing event %d to calendar: %v", e.ID, err)
	}
}
