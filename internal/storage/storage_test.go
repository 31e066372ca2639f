package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("close failed: %v", err)
		}
	})
	return s
}

func createUser(t *testing.T, s *Storage, name string) *domain.User {
	t.Helper()
	u, err := s.EnsureUser(name, 0)
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	return u
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	s := setupTestStorage(t)

	first, err := s.EnsureUser("alice", 0)
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	second, err := s.EnsureUser("alice", 77)
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same id, got %d and %d", first.ID, second.ID)
	}
	if second.TelegramID != 77 {
		t.Fatalf("expected telegram id updated, got %d", second.TelegramID)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}

func TestGetUserByTelegramID(t *testing.T) {
	s := setupTestStorage(t)
	if _, err := s.EnsureUser("alice", 77); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	createUser(t, s, "bob")

	u, err := s.GetUserByTelegramID(77)
	if err != nil || u == nil || u.Name != "alice" {
		t.Fatalf("expected alice, got %+v, %v", u, err)
	}
	if u, err := s.GetUserByTelegramID(0); err != nil || u != nil {
		t.Fatalf("expected no user for chat 0, got %+v, %v", u, err)
	}
	if u, err := s.GetUserByTelegramID(5); err != nil || u != nil {
		t.Fatalf("expected no user for unknown chat, got %+v, %v", u, err)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s.Close()
}

func TestEventRoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")

	date := time.Date(2025, 3, 10, 10, 0, 0, 123, time.UTC)
	next := time.Date(2025, 5, 10, 10, 0, 0, 123, time.UTC)
	e := &domain.Event{
		UserID:         u.ID,
		Title:          "Rent",
		EventDate:      date,
		Repeat:         countdown.RuleMonthly,
		Timezone:       "Europe/Warsaw",
		NextOccurrence: &next,
	}
	if err := s.CreateEvent(e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	got, err := s.GetEvent(e.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected event")
	}
	if !got.EventDate.Equal(date) || got.Repeat != countdown.RuleMonthly || got.Timezone != "Europe/Warsaw" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.NextOccurrence == nil || !got.NextOccurrence.Equal(next) {
		t.Fatalf("unexpected next occurrence %v", got.NextOccurrence)
	}

	missing, err := s.GetEvent(9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing event, got %v, %v", missing, err)
	}
}

func TestListEventsByUserSearch(t *testing.T) {
	s := setupTestStorage(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"Birthday", "Dentist", "100% done_"} {
		if err := s.CreateEvent(&domain.Event{UserID: alice.ID, Title: title, EventDate: base.AddDate(0, 0, i), Repeat: countdown.RuleNone}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}
	if err := s.CreateEvent(&domain.Event{UserID: bob.ID, Title: "Birthday", EventDate: base, Repeat: countdown.RuleNone}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	all, err := s.ListEventsByUser(alice.ID, "")
	if err != nil {
		t.Fatalf("ListEventsByUser failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	found, err := s.ListEventsByUser(alice.ID, "birth")
	if err != nil {
		t.Fatalf("ListEventsByUser failed: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Birthday" {
		t.Fatalf("unexpected search result %+v", found)
	}

	literal, err := s.ListEventsByUser(alice.ID, "0%")
	if err != nil {
		t.Fatalf("ListEventsByUser failed: %v", err)
	}
	if len(literal) != 1 || literal[0].Title != "100% done_" {
		t.Fatalf("expected literal percent match, got %+v", literal)
	}
}

func TestAdvanceNextOccurrenceNeverRegresses(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")

	e := &domain.Event{UserID: u.ID, Title: "Standup", EventDate: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), Repeat: countdown.RuleDaily}
	if err := s.CreateEvent(e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	later := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	changed, err := s.AdvanceNextOccurrence(e.ID, later)
	if err != nil || !changed {
		t.Fatalf("expected first advance to apply, got %v, %v", changed, err)
	}
	changed, err = s.AdvanceNextOccurrence(e.ID, earlier)
	if err != nil {
		t.Fatalf("AdvanceNextOccurrence failed: %v", err)
	}
	if changed {
		t.Fatalf("expected earlier value to be rejected")
	}

	got, _ := s.GetEvent(e.ID)
	if got.NextOccurrence == nil || !got.NextOccurrence.Equal(later) {
		t.Fatalf("expected cache to stay at %s, got %v", later, got.NextOccurrence)
	}
}

func TestUpdateEventDetailsKeepsOccurrenceCache(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")

	stale := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	e := &domain.Event{UserID: u.ID, Title: "Standup", EventDate: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), Repeat: countdown.RuleDaily, NextOccurrence: &stale}
	if err := s.CreateEvent(e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	// a refresh lands between the read and the write
	read, _ := s.GetEvent(e.ID)
	later := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AdvanceNextOccurrence(e.ID, later); err != nil {
		t.Fatalf("AdvanceNextOccurrence failed: %v", err)
	}

	read.Title = "Daily standup"
	read.Timezone = "Europe/Berlin"
	if err := s.UpdateEventDetails(read); err != nil {
		t.Fatalf("UpdateEventDetails failed: %v", err)
	}

	got, _ := s.GetEvent(e.ID)
	if got.Title != "Daily standup" || got.Timezone != "Europe/Berlin" {
		t.Fatalf("details not written: %+v", got)
	}
	if got.NextOccurrence == nil || !got.NextOccurrence.Equal(later) {
		t.Fatalf("expected cache to stay at %s, got %v", later, got.NextOccurrence)
	}
}

func TestListEventsDueBefore(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	events := []*domain.Event{
		{UserID: u.ID, Title: "past one-off", EventDate: now.Add(-time.Hour), Repeat: countdown.RuleNone},
		{UserID: u.ID, Title: "future one-off", EventDate: future, Repeat: countdown.RuleNone},
		{UserID: u.ID, Title: "uncached", EventDate: now.AddDate(0, -1, 0), Repeat: countdown.RuleWeekly},
		{UserID: u.ID, Title: "fresh", EventDate: now.AddDate(0, -1, 0), Repeat: countdown.RuleWeekly, NextOccurrence: &future},
	}
	for _, e := range events {
		if err := s.CreateEvent(e); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	due, err := s.ListEventsDueBefore(now)
	if err != nil {
		t.Fatalf("ListEventsDueBefore failed: %v", err)
	}
	if len(due) != 2 || due[0].Title != "past one-off" || due[1].Title != "uncached" {
		t.Fatalf("unexpected due list %+v", due)
	}
}

func TestRecordAlertDedupes(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")
	e := &domain.Event{UserID: u.ID, Title: "x", EventDate: time.Now(), Repeat: countdown.RuleNone}
	if err := s.CreateEvent(e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	first, err := s.RecordAlert(e.ID, e.EventDate)
	if err != nil || !first {
		t.Fatalf("expected first alert recorded, got %v, %v", first, err)
	}
	second, err := s.RecordAlert(e.ID, e.EventDate)
	if err != nil || second {
		t.Fatalf("expected duplicate alert ignored, got %v, %v", second, err)
	}
	if err := s.ForgetAlert(e.ID, e.EventDate); err != nil {
		t.Fatalf("ForgetAlert failed: %v", err)
	}
	again, err := s.RecordAlert(e.ID, e.EventDate)
	if err != nil || !again {
		t.Fatalf("expected alert recorded after forget, got %v, %v", again, err)
	}
}

func TestShareTokens(t *testing.T) {
	s := setupTestStorage(t)
	u := createUser(t, s, "alice")

	se := &domain.SharedEvent{OwnerID: u.ID, Payload: domain.SharePayload{
		Title:     "Launch",
		EventDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Repeat:    "yearly",
	}}
	if err := s.CreateSharedEvent(se); err != nil {
		t.Fatalf("CreateSharedEvent failed: %v", err)
	}

	tok := &domain.ShareToken{SharedEventID: se.ID, Token: "abc"}
	if err := s.CreateShareToken(tok); err != nil {
		t.Fatalf("CreateShareToken failed: %v", err)
	}

	got, err := s.GetShareToken("abc")
	if err != nil || got == nil {
		t.Fatalf("GetShareToken failed: %v", err)
	}
	if got.SharedEventID != se.ID || got.ExpiresAt != nil {
		t.Fatalf("unexpected token %+v", got)
	}

	loaded, err := s.GetSharedEvent(se.ID)
	if err != nil || loaded == nil {
		t.Fatalf("GetSharedEvent failed: %v", err)
	}
	if loaded.Payload.Title != "Launch" || loaded.Payload.Repeat != "yearly" {
		t.Fatalf("unexpected payload %+v", loaded.Payload)
	}

	if missing, _ := s.GetShareToken("nope"); missing != nil {
		t.Fatalf("expected nil for unknown token")
	}
}
