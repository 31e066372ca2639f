package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/service"
)

const perPage = 5

// Event action keyboard (for single event)
func eventKeyboard(eventID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔗 Share", fmt.Sprintf("share:%d", eventID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("del:%d", eventID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back to list", "page:0"),
		),
	)
}

// Event list keyboard with pagination
func eventListKeyboard(views []service.EventView, page int) *tgbotapi.InlineKeyboardMarkup {
	if len(views) == 0 {
		return nil
	}

	start, end := pageBounds(len(views), page)
	page = start / perPage

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, v := range views[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", domain.TierEmoji(v.Status.Tier), truncate(v.Event.Title, 30)),
				fmt.Sprintf("view:%d", v.Event.ID),
			),
		))
	}

	var navRow []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("page:%d", page-1)))
	}
	if end < len(views) {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("page:%d", page+1)))
	}
	if len(navRow) > 0 {
		rows = append(rows, navRow)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", fmt.Sprintf("page:%d", page)),
	))

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// Import confirmation keyboard for a share preview
func importKeyboard(token string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📥 Import", "import:"+token),
		),
	)
}

// pageBounds clamps page to the valid range and returns the slice bounds.
func pageBounds(n, page int) (int, int) {
	start := page * perPage
	if start >= n || start < 0 {
		start = 0
	}
	end := start + perPage
	if end > n {
		end = n
	}
	return start, end
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
