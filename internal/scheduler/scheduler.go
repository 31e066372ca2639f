package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/countdowns/config"
	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/service"
	"github.com/tazhate/countdowns/internal/storage"
)

// digestSize caps how many events a morning digest lists.
const digestSize = 10

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

type Scheduler struct {
	cron      *cron.Cron
	cfg       *config.Config
	storage   *storage.Storage
	events    *service.EventService
	sender    MessageSender
	alertTier countdown.Tier
}

func New(cfg *config.Config, storage *storage.Storage, events *service.EventService) *Scheduler {
	tier := countdown.Tier(strings.ToUpper(cfg.Scheduler.AlertTier))
	if tier.Rank() <= 0 {
		log.Printf("Unknown alert tier %q, using %s", cfg.Scheduler.AlertTier, countdown.TierRed)
		tier = countdown.TierRed
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(cfg.Timezone)),
		cfg:       cfg,
		storage:   storage,
		events:    events,
		alertTier: tier,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.RefreshCron, s.tick); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.DigestCron, s.digest); err != nil {
		return fmt.Errorf("add digest job: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, refresh: %s, digest: %s, alert tier: %s)",
		s.cfg.Timezone, s.cfg.Scheduler.RefreshCron, s.cfg.Scheduler.DigestCron, s.alertTier)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) tick() {
	moved, err := s.events.RefreshStale()
	if err != nil {
		log.Printf("Error refreshing occurrences: %v", err)
	} else if moved > 0 {
		log.Printf("Refreshed %d recurring events", moved)
	}
	s.checkAlerts()
}

// checkAlerts announces every event that has reached the alert tier, once per occurrence.
func (s *Scheduler) checkAlerts() {
	if s.sender == nil {
		return
	}
	users, err := s.notifiableUsers()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		return
	}

	for _, u := range users {
		views, _, err := s.events.Upcoming(u.ID)
		if err != nil {
			log.Printf("Error listing events for %s: %v", u.Name, err)
			continue
		}
		for _, v := range views {
			if !v.Status.Tier.AtLeast(s.alertTier) {
				continue
			}
			s.sendAlert(u, v)
		}
	}
}

func (s *Scheduler) sendAlert(u *domain.User, v service.EventView) {
	isNew, err := s.storage.RecordAlert(v.Event.ID, v.Status.EffectiveDue)
	if err != nil {
		log.Printf("Error recording alert for event %d: %v", v.Event.ID, err)
		return
	}
	if !isNew {
		return
	}

	if err := s.sender.SendMessage(u.TelegramID, formatAlert(v)); err != nil {
		log.Printf("Error sending alert to %d: %v", u.TelegramID, err)
		if err := s.storage.ForgetAlert(v.Event.ID, v.Status.EffectiveDue); err != nil {
			log.Printf("Error forgetting alert for event %d: %v", v.Event.ID, err)
		}
	}
}

func (s *Scheduler) digest() {
	if s.sender == nil {
		return
	}
	users, err := s.notifiableUsers()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		return
	}

	for _, u := range users {
		views, _, err := s.events.Upcoming(u.ID)
		if err != nil {
			log.Printf("Error listing events for %s: %v", u.Name, err)
			continue
		}
		if err := s.sender.SendMessage(u.TelegramID, formatDigest(views, s.cfg.Timezone)); err != nil {
			log.Printf("Error sending digest to %d: %v", u.TelegramID, err)
		}
	}
}

func (s *Scheduler) notifiableUsers() ([]*domain.User, error) {
	users, err := s.storage.ListUsers()
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.HasTelegram() {
			out = append(out, u)
		}
	}
	return out, nil
}
