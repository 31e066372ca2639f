package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/countdowns/config"
	"github.com/tazhate/countdowns/internal/bot"
	"github.com/tazhate/countdowns/internal/clients/caldav"
	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/scheduler"
	"github.com/tazhate/countdowns/internal/server"
	"github.com/tazhate/countdowns/internal/service"
	"github.com/tazhate/countdowns/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "", "path to config.yaml (defaults to $COUNTDOWNS_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := service.NewEventService(store, countdown.SystemClock{})
	shares := service.NewShareService(store, events)

	var calendar *service.CalendarService
	if cfg.CalDAV.Enabled() {
		client := caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password)
		cal, err := client.SelectCalendar(ctx, cfg.CalDAV.Calendar)
		if err != nil {
			log.Fatalf("Failed to select CalDAV calendar: %v", err)
		}
		log.Printf("CalDAV sync enabled (calendar: %s)", cal.DisplayName)
		calendar = service.NewCalendarService(store, countdown.SystemClock{}, client)
		events.SetMirror(calendar)
	} else {
		calendar = service.NewCalendarService(store, countdown.SystemClock{}, nil)
	}

	srv, err := server.New(cfg, store, events, shares, calendar)
	if err != nil {
		log.Fatalf("Failed to init server: %v", err)
	}

	sched := scheduler.New(cfg, store, events)
	if cfg.Telegram.Token != "" {
		tgBot, err := bot.New(cfg, store, events, shares)
		if err != nil {
			log.Fatalf("Failed to init bot: %v", err)
		}
		sched.SetSender(tgBot)

		go func() {
			if err := tgBot.Start(ctx); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	} else {
		log.Println("Telegram token not set, bot, alerts and digests are disabled")
	}

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Printf("Server error: %v", err)
			cancel()
		}
	}()

	log.Println("Countdowns started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("Countdowns stopped")
}
