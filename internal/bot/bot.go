package bot

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/countdowns/config"
	"github.com/tazhate/countdowns/internal/service"
	"github.com/tazhate/countdowns/internal/storage"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	storage *storage.Storage
	events  *service.EventService
	shares  *service.ShareService
}

func New(cfg *config.Config, storage *storage.Storage, events *service.EventService, shares *service.ShareService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Printf("Authorized as @%s", api.Self.UserName)
	return newBot(api, cfg, storage, events, shares), nil
}

// NewWithEndpoint talks to a Bot API compatible server at endpoint, which must
// contain two %s verbs for the token and method.
func NewWithEndpoint(cfg *config.Config, endpoint string, storage *storage.Storage, events *service.EventService, shares *service.ShareService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, cfg, storage, events, shares), nil
}

func newBot(api *tgbotapi.BotAPI, cfg *config.Config, storage *storage.Storage, events *service.EventService, shares *service.ShareService) *Bot {
	b := &Bot{
		api:     api,
		cfg:     cfg,
		storage: storage,
		events:  events,
		shares:  shares,
	}
	b.setCommands()
	return b
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "list", Description: "⏳ Upcoming countdowns"},
		{Command: "add", Description: "➕ Add a countdown"},
		{Command: "share", Description: "🔗 Share a countdown"},
		{Command: "import", Description: "📥 Import a shared countdown"},
		{Command: "help", Description: "❓ Command reference"},
	}

	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	log.Println("Telegram bot polling for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing message %d: %v", msgID, err)
	}
}
