package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
)

type fakeCalendarStore struct {
	put     map[string]*ical.Calendar
	deleted []string
}

func newFakeCalendarStore() *fakeCalendarStore {
	return &fakeCalendarStore{put: make(map[string]*ical.Calendar)}
}

func (f *fakeCalendarStore) Put(ctx context.Context, uid string, cal *ical.Calendar) error {
	f.put[uid] = cal
	return nil
}

func (f *fakeCalendarStore) Delete(ctx context.Context, uid string) error {
	f.deleted = append(f.deleted, uid)
	return nil
}

func vevents(cal *ical.Calendar) []*ical.Component {
	var out []*ical.Component
	for _, c := range cal.Children {
		if c.Name == ical.CompEvent {
			out = append(out, c)
		}
	}
	return out
}

func TestRRuleMatchesOccurrences(t *testing.T) {
	now := utc(2025, 1, 1, 0, 0, 0)
	cs := NewCalendarService(nil, &fakeClock{now: now}, nil)

	tests := []struct {
		name   string
		anchor time.Time
		rule   countdown.Rule
	}{
		{"daily", utc(2025, 1, 2, 7, 30, 0), countdown.RuleDaily},
		{"weekly", utc(2025, 1, 6, 18, 0, 0), countdown.RuleWeekly},
		{"monthly mid-month", utc(2025, 1, 15, 10, 0, 0), countdown.RuleMonthly},
		{"monthly 28th", utc(2025, 1, 28, 10, 0, 0), countdown.RuleMonthly},
		{"yearly", utc(2025, 7, 4, 12, 0, 0), countdown.RuleYearly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &domain.Event{ID: 1, Title: tt.name, EventDate: tt.anchor, Repeat: tt.rule}
			comp, err := cs.EventComponent(e, now)
			if err != nil {
				t.Fatalf("EventComponent failed: %v", err)
			}

			opt, err := comp.Props.RecurrenceRule()
			if err != nil || opt == nil {
				t.Fatalf("expected RRULE, got %v, %v", opt, err)
			}
			opt.Dtstart = tt.anchor
			r, err := rrule.NewRRule(*opt)
			if err != nil {
				t.Fatalf("NewRRule failed: %v", err)
			}

			want, err := countdown.Occurrences(tt.anchor, tt.rule, tt.anchor, 12)
			if err != nil {
				t.Fatalf("Occurrences failed: %v", err)
			}
			got := r.Between(tt.anchor, want[len(want)-1], true)
			if len(got) != len(want) {
				t.Fatalf("expected %d occurrences, got %d", len(want), len(got))
			}
			for i := range want {
				if !got[i].Equal(want[i]) {
					t.Fatalf("occurrence %d: expected %s, got %s", i, want[i], got[i])
				}
			}
		})
	}
}

func TestClampedAnchorsUseRDates(t *testing.T) {
	now := utc(2025, 1, 1, 0, 0, 0)
	cs := NewCalendarService(nil, &fakeClock{now: now}, nil)

	tests := []struct {
		name   string
		anchor time.Time
		rule   countdown.Rule
		count  int
		second time.Time
	}{
		{"monthly 31st", utc(2025, 1, 31, 9, 0, 0), countdown.RuleMonthly, monthlyRDates, utc(2025, 2, 28, 9, 0, 0)},
		{"leap day", utc(2024, 2, 29, 0, 0, 0), countdown.RuleYearly, yearlyRDates, utc(2025, 2, 28, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &domain.Event{ID: 1, Title: tt.name, EventDate: tt.anchor, Repeat: tt.rule}
			comp, err := cs.EventComponent(e, now)
			if err != nil {
				t.Fatalf("EventComponent failed: %v", err)
			}
			if comp.Props.Get(ical.PropRecurrenceRule) != nil {
				t.Fatalf("clamped anchor must not carry an RRULE")
			}

			rdates := comp.Props.Values(ical.PropRecurrenceDates)
			if len(rdates) != tt.count {
				t.Fatalf("expected %d RDATEs, got %d", tt.count, len(rdates))
			}
			first, err := rdates[0].DateTime(time.UTC)
			if err != nil {
				t.Fatalf("parse RDATE: %v", err)
			}
			if !first.Equal(tt.second) {
				t.Fatalf("expected first RDATE %s, got %s", tt.second, first)
			}
		})
	}
}

func TestFeedRendersAllEvents(t *testing.T) {
	now := utc(2025, 3, 1, 0, 0, 0)
	env := setupTestEnv(t, now)
	cs := NewCalendarService(env.storage, env.clock, nil)

	env.create(t, env.alice.ID, "Trip", utc(2025, 4, 1, 6, 0, 0), countdown.RuleNone)
	env.create(t, env.alice.ID, "Gym", utc(2025, 3, 3, 18, 0, 0), countdown.RuleWeekly)
	env.create(t, env.alice.ID, "Payday", utc(2025, 3, 31, 9, 0, 0), countdown.RuleMonthly)
	env.create(t, env.bob.ID, "Not mine", utc(2025, 3, 2, 0, 0, 0), countdown.RuleNone)

	var buf bytes.Buffer
	if err := cs.WriteFeed(&buf, env.alice.ID); err != nil {
		t.Fatalf("WriteFeed failed: %v", err)
	}

	cal, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	events := vevents(cal)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	summaries := make(map[string]*ical.Component)
	for _, ev := range events {
		summaries[ev.Props.Get(ical.PropSummary).Value] = ev
	}
	if _, ok := summaries["Not mine"]; ok {
		t.Fatalf("feed leaked another user's event")
	}
	if gym := summaries["Gym"]; gym == nil || !strings.Contains(gym.Props.Get(ical.PropRecurrenceRule).Value, "WEEKLY") {
		t.Fatalf("expected weekly RRULE for Gym")
	}
	if trip := summaries["Trip"]; trip == nil || trip.Props.Get(ical.PropRecurrenceRule) != nil {
		t.Fatalf("expected one-off Trip without RRULE")
	}
	if pay := summaries["Payday"]; pay == nil || len(pay.Props.Values(ical.PropRecurrenceDates)) == 0 {
		t.Fatalf("expected RDATEs for Payday")
	}
}

func TestSyncAndRemoveEvent(t *testing.T) {
	env := setupTestEnv(t, utc(2025, 3, 1, 0, 0, 0))
	store := newFakeCalendarStore()
	cs := NewCalendarService(env.storage, env.clock, store)
	env.events.SetMirror(cs)

	created := env.create(t, env.alice.ID, "Dentist", utc(2025, 3, 4, 8, 0, 0), countdown.RuleNone)

	stored, _ := env.storage.GetEvent(created.Event.ID)
	if stored.CalDAVUID == "" {
		t.Fatalf("expected CalDAV uid to be saved")
	}
	cal, ok := store.put[stored.CalDAVUID]
	if !ok {
		t.Fatalf("expected event pushed under %s", stored.CalDAVUID)
	}
	ev := vevents(cal)
	if len(ev) != 1 || ev[0].Props.Get(ical.PropUID).Value != stored.CalDAVUID {
		t.Fatalf("unexpected pushed calendar")
	}

	if err := env.events.Delete(created.Event.ID, env.alice.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != stored.CalDAVUID {
		t.Fatalf("expected remote delete, got %v", store.deleted)
	}
}

func TestUnconfiguredCalendarIsNoop(t *testing.T) {
	cs := NewCalendarService(nil, nil, nil)
	e := &domain.Event{ID: 1, Title: "x", EventDate: time.Now()}
	if err := cs.SyncEvent(e); err != nil {
		t.Fatalf("SyncEvent failed: %v", err)
	}
	if e.CalDAVUID != "" {
		t.Fatalf("unconfigured sync must not assign a uid")
	}
	if err := cs.RemoveEvent(e); err != nil {
		t.Fatalf("RemoveEvent failed: %v", err)
	}
}
