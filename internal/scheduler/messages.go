package scheduler

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/domain"
	"github.com/tazhate/countdowns/internal/service"
)

func formatAlert(v service.EventView) string {
	return fmt.Sprintf("%s <b>%s</b> in %s\n%s",
		domain.TierEmoji(v.Status.Tier),
		html.EscapeString(v.Event.Title),
		countdown.FormatRemaining(v.Status.RemainingSeconds),
		v.DueLine(nil))
}

func formatDigest(views []service.EventView, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("☀️ <b>Upcoming countdowns</b>\n\n")

	if len(views) == 0 {
		sb.WriteString("Nothing on the horizon.")
		return sb.String()
	}

	shown := views
	if len(shown) > digestSize {
		shown = shown[:digestSize]
	}
	for _, v := range shown {
		sb.WriteString(fmt.Sprintf("%s %s: %s (%s)\n",
			domain.TierEmoji(v.Status.Tier),
			html.EscapeString(v.Event.Title),
			countdown.FormatRemaining(v.Status.RemainingSeconds),
			v.DueLine(loc)))
	}
	if rest := len(views) - len(shown); rest > 0 {
		sb.WriteString(fmt.Sprintf("\n…and %d more", rest))
	}
	return sb.String()
}
