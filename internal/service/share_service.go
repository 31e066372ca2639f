package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/storage"
)

var ErrShareExpired = errors.New("share link expired")

// ShareLink is a freshly issued token for a snapshot of an event.
type ShareLink struct {
	Token     string
	ExpiresAt *time.Time
}

// SharePreview is what an anonymous visitor sees for a token, projected at ServerNow.
type SharePreview struct {
	Payload   domain.SharePayload
	Status    countdown.Status
	ServerNow time.Time
}

type ShareService struct {
	storage *storage.Storage
	events  *EventService
	clock   countdown.Clock
}

func NewShareService(s *storage.Storage, events *EventService) *ShareService {
	return &ShareService{storage: s, events: events, clock: events.clock}
}

// CreateToken snapshots the event and issues a new token for it. Each call issues
// a new token; earlier ones keep pointing at their own snapshot. ttl <= 0 never expires.
func (s *ShareService) CreateToken(eventID, userID int64, ttl time.Duration) (*ShareLink, error) {
	e, err := s.events.owned(eventID, userID)
	if err != nil {
		return nil, err
	}

	se := &domain.SharedEvent{
		OwnerID: userID,
		Payload: domain.SharePayload{
			Title:       e.Title,
			Description: e.Description,
			EventDate:   e.EventDate,
			Repeat:      string(e.Repeat),
			Timezone:    e.Timezone,
		},
	}
	if err := s.storage.CreateSharedEvent(se); err != nil {
		return nil, fmt.Errorf("create shared event: %w", err)
	}

	tok := &domain.ShareToken{SharedEventID: se.ID, Token: uuid.NewString()}
	if ttl > 0 {
		exp := s.clock.Now().Add(ttl).UTC()
		tok.ExpiresAt = &exp
	}
	if err := s.storage.CreateShareToken(tok); err != nil {
		return nil, fmt.Errorf("create share token: %w", err)
	}

	return &ShareLink{Token: tok.Token, ExpiresAt: tok.ExpiresAt}, nil
}

// Preview resolves a token without authentication.
func (s *ShareService) Preview(token string) (*SharePreview, error) {
	now := s.clock.Now()
	se, err := s.resolve(token, now)
	if err != nil {
		return nil, err
	}

	rule, err := countdown.ParseRule(se.Payload.Repeat)
	if err != nil {
		return nil, fmt.Errorf("shared event %d: %w", se.ID, err)
	}
	st, err := countdown.Resolve(se.Payload.EventDate, rule, now)
	if err != nil {
		return nil, fmt.Errorf("shared event %d: %w", se.ID, err)
	}
	return &SharePreview{Payload: se.Payload, Status: st, ServerNow: now}, nil
}

// Import copies the shared snapshot into a new event owned by userID.
func (s *ShareService) Import(token string, userID int64) (*EventView, time.Time, error) {
	now := s.clock.Now()
	se, err := s.resolve(token, now)
	if err != nil {
		return nil, now, err
	}

	rule, err := countdown.ParseRule(se.Payload.Repeat)
	if err != nil {
		return nil, now, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.events.create(userID, EventInput{
		Title:       se.Payload.Title,
		Description: se.Payload.Description,
		EventDate:   se.Payload.EventDate,
		Repeat:      rule,
		Timezone:    se.Payload.Timezone,
	}, false)
}

func (s *ShareService) resolve(token string, now time.Time) (*domain.SharedEvent, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}
	tok, err := s.storage.GetShareToken(token)
	if err != nil {
		return nil, fmt.Errorf("get share token: %w", err)
	}
	if tok == nil {
		return nil, ErrNotFound
	}
	if tok.IsExpired(now) {
		return nil, ErrShareExpired
	}

	se, err := s.storage.GetSharedEvent(tok.SharedEventID)
	if err != nil {
		return nil, fmt.Errorf("get shared event: %w", err)
	}
	if se == nil {
		return nil, ErrNotFound
	}
	return se, nil
}
