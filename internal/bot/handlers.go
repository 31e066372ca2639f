package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/countdowns/internal/domain"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

// lookupUser maps a Telegram account to a configured user. Unknown accounts get nil.
func (b *Bot) lookupUser(from *tgbotapi.User) *domain.User {
	if from == nil {
		return nil
	}
	user, err := b.storage.GetUserByTelegramID(from.ID)
	if err != nil {
		log.Printf("Error getting user: %v", err)
		return nil
	}
	return user
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	user := b.lookupUser(msg.From)
	if user == nil {
		b.SendMessage(chatID, fmt.Sprintf("⛔ Access denied. Your Telegram ID is <code>%d</code>.", chatID))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg, user)
		return
	}

	b.SendMessage(chatID, addUsage)
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	user := b.lookupUser(callback.From)
	if user == nil {
		b.answer(callback.ID, "⛔ Access denied")
		return
	}

	action, arg, _ := strings.Cut(callback.Data, ":")

	switch action {
	case "page":
		page, _ := strconv.Atoi(arg)
		text, kb, err := b.listPage(user, page)
		if err != nil {
			log.Printf("Error listing events for %s: %v", user.Name, err)
			b.answer(callback.ID, "❌ Could not load countdowns")
			return
		}
		b.editMessage(chatID, msgID, text, kb)
		b.answer(callback.ID, "")

	case "view":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		v, _, err := b.events.Get(id, user.ID)
		if err != nil {
			b.answer(callback.ID, errorText(err))
			return
		}
		kb := eventKeyboard(id)
		b.editMessage(chatID, msgID, formatEventDetail(v, b.cfg.Timezone), &kb)
		b.answer(callback.ID, "")

	case "del":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		if err := b.events.Delete(id, user.ID); err != nil {
			b.answer(callback.ID, errorText(err))
			return
		}
		b.editMessage(chatID, msgID, fmt.Sprintf("🗑 Countdown #%d deleted", id), nil)
		b.answer(callback.ID, "Deleted")

	case "share":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		text, err := b.shareText(id, user)
		if err != nil {
			b.answer(callback.ID, errorText(err))
			return
		}
		b.SendMessage(chatID, text)
		b.answer(callback.ID, "")

	case "import":
		text, err := b.importShare(arg, user)
		if err != nil {
			b.answer(callback.ID, errorText(err))
			return
		}
		b.editMessage(chatID, msgID, text, nil)
		b.answer(callback.ID, "Imported")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}
