package bot

import (
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/service"
)

const addUsage = "Usage: /add YYYY-MM-DD [HH:MM] title [!daily|!weekly|!monthly|!yearly]"

func (b *Bot) handleCommand(msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.SendMessage(chatID, fmt.Sprintf("👋 Hi, %s!\n\nI keep your countdowns.\n\n/help for the command list", html.EscapeString(user.Name)))
	case "help":
		b.cmdHelp(chatID)
	case "list":
		b.cmdList(chatID, user)
	case "add":
		b.cmdAdd(chatID, user, args)
	case "event":
		b.cmdEvent(chatID, user, args)
	case "del":
		b.cmdDelete(chatID, user, args)
	case "share":
		b.cmdShare(chatID, user, args)
	case "import":
		b.cmdImport(chatID, user, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the command list")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

/list — upcoming countdowns
/add YYYY-MM-DD [HH:MM] title — add a countdown
    append !daily, !weekly, !monthly or !yearly to repeat
/event ID — show one countdown
/del ID — delete a countdown
/share ID — create a share link
/import TOKEN — copy a shared countdown

Dates are read in ` + b.cfg.Timezone.String() + `.`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdList(chatID int64, user *domain.User) {
	text, kb, err := b.listPage(user, 0)
	if err != nil {
		log.Printf("Error listing events for %s: %v", user.Name, err)
		b.SendMessage(chatID, "❌ Could not load countdowns")
		return
	}
	if kb == nil {
		b.SendMessage(chatID, text)
		return
	}
	b.SendMessageWithKeyboard(chatID, text, *kb)
}

func (b *Bot) listPage(user *domain.User, page int) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	views, _, err := b.events.Upcoming(user.ID)
	if err != nil {
		return "", nil, err
	}
	if len(views) == 0 {
		return "⏳ No countdowns yet.\n\n" + addUsage, nil, nil
	}

	start, end := pageBounds(len(views), page)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏳ <b>Countdowns</b> (%d)\n\n", len(views)))
	for _, v := range views[start:end] {
		sb.WriteString(formatEventLine(v))
		sb.WriteString("\n")
	}
	return sb.String(), eventListKeyboard(views, page), nil
}

func (b *Bot) cmdAdd(chatID int64, user *domain.User, args string) {
	in, err := parseAddArgs(args, b.cfg.Timezone)
	if err != nil {
		b.SendMessage(chatID, "❌ "+err.Error()+"\n\n"+addUsage)
		return
	}

	v, _, err := b.events.Create(user.ID, in)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessageWithKeyboard(chatID, "✅ Added\n\n"+formatEventDetail(v, b.cfg.Timezone), eventKeyboard(v.Event.ID))
}

func (b *Bot) cmdEvent(chatID int64, user *domain.User, args string) {
	id, ok := b.parseID(chatID, args, "/event ID")
	if !ok {
		return
	}
	v, _, err := b.events.Get(id, user.ID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessageWithKeyboard(chatID, formatEventDetail(v, b.cfg.Timezone), eventKeyboard(id))
}

func (b *Bot) cmdDelete(chatID int64, user *domain.User, args string) {
	id, ok := b.parseID(chatID, args, "/del ID")
	if !ok {
		return
	}
	if err := b.events.Delete(id, user.ID); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Countdown #%d deleted", id))
}

func (b *Bot) cmdShare(chatID int64, user *domain.User, args string) {
	id, ok := b.parseID(chatID, args, "/share ID")
	if !ok {
		return
	}
	text, err := b.shareText(id, user)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessage(chatID, text)
}

func (b *Bot) shareText(eventID int64, user *domain.User) (string, error) {
	link, err := b.shares.CreateToken(eventID, user.ID, b.cfg.ShareTTL)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("🔗 %s/api/share/%s\n\nOr forward: <code>/import %s</code>",
		strings.TrimSuffix(b.cfg.PublicURL, "/"), link.Token, link.Token)
	if link.ExpiresAt != nil {
		text += "\n\nExpires " + link.ExpiresAt.In(b.cfg.Timezone).Format("02 Jan 2006 15:04 MST")
	}
	return text, nil
}

func (b *Bot) cmdImport(chatID int64, user *domain.User, args string) {
	if args == "" {
		b.SendMessage(chatID, "Usage: /import TOKEN")
		return
	}

	preview, err := b.shares.Preview(args)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	text := fmt.Sprintf("📥 <b>%s</b>\n%s %s\n\nImport it?",
		html.EscapeString(preview.Payload.Title),
		domain.TierEmoji(preview.Status.Tier),
		countdown.FormatRemaining(preview.Status.RemainingSeconds))
	b.SendMessageWithKeyboard(chatID, text, importKeyboard(args))
}

func (b *Bot) importShare(token string, user *domain.User) (string, error) {
	v, _, err := b.shares.Import(token, user.ID)
	if err != nil {
		return "", err
	}
	return "✅ Imported\n\n" + formatEventDetail(v, b.cfg.Timezone), nil
}

func (b *Bot) parseID(chatID int64, args, usage string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil || id <= 0 {
		b.SendMessage(chatID, "Usage: "+usage)
		return 0, false
	}
	return id, true
}

func (b *Bot) replyError(chatID int64, err error) {
	b.SendMessage(chatID, "❌ "+errorText(err))
}

func errorText(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return html.EscapeString(err.Error())
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrForbidden):
		return "That countdown belongs to someone else"
	case errors.Is(err, service.ErrShareExpired):
		return "This share link has expired"
	default:
		log.Printf("Bot error: %v", err)
		return "Something went wrong"
	}
}

// parseAddArgs reads "YYYY-MM-DD [HH:MM] title [!rule]" in loc.
func parseAddArgs(args string, loc *time.Location) (service.EventInput, error) {
	var in service.EventInput
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return in, fmt.Errorf("date and title are required")
	}
	if loc == nil {
		loc = time.UTC
	}

	dateStr := fields[0]
	rest := fields[1:]
	layout := "2006-01-02"
	if len(rest) > 1 && isClock(rest[0]) {
		dateStr += " " + rest[0]
		layout = "2006-01-02 15:04"
		rest = rest[1:]
	}
	date, err := time.ParseInLocation(layout, dateStr, loc)
	if err != nil {
		return in, fmt.Errorf("invalid date %q", dateStr)
	}

	in.Repeat = countdown.RuleNone
	var title []string
	for _, f := range rest {
		if strings.HasPrefix(f, "!") && len(f) > 1 {
			rule, err := countdown.ParseRule(f[1:])
			if err != nil {
				return in, fmt.Errorf("unknown repeat %q", f)
			}
			in.Repeat = rule
			continue
		}
		title = append(title, f)
	}

	in.Title = strings.Join(title, " ")
	in.EventDate = date.UTC()
	if loc != time.UTC {
		in.Timezone = loc.String()
	}
	return in, nil
}

func isClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func formatEventLine(v service.EventView) string {
	return fmt.Sprintf("%s <b>%s</b>: %s <i>#%d</i>",
		domain.TierEmoji(v.Status.Tier),
		html.EscapeString(v.Event.Title),
		countdown.FormatRemaining(v.Status.RemainingSeconds),
		v.Event.ID)
}

func formatEventDetail(v *service.EventView, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", domain.TierEmoji(v.Status.Tier), html.EscapeString(v.Event.Title)))
	if v.Event.Description != "" {
		sb.WriteString(html.EscapeString(v.Event.Description))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n⏳ %s\n📅 %s\n🆔 #%d",
		countdown.FormatRemaining(v.Status.RemainingSeconds),
		v.DueLine(loc),
		v.Event.ID))
	return sb.String()
}
