package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/tazhate/countdowns/internal/countdown"
)

const titleWidth = 36

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("⏳ Countdowns"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(m.statusLine()))
	b.WriteString("\n\n")

	if m.searching {
		b.WriteString(inputStyle.Render(m.searchInput.View()))
		b.WriteString("\n\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case len(m.rows) == 0 && m.offset.Known():
		b.WriteString(dimStyle.Render("Nothing on the horizon."))
		b.WriteString("\n")
	case len(m.rows) == 0:
		b.WriteString(dimStyle.Render("Loading..."))
		b.WriteString("\n")
	}

	for i, r := range m.rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}

	if m.Message != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.Message))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return baseStyle.Render(b.String())
}

func (m Model) statusLine() string {
	parts := []string{}
	if m.params.Query != "" {
		parts = append(parts, fmt.Sprintf("search %q", m.params.Query))
	}
	if m.params.IncludeOverdue {
		parts = append(parts, "with overdue")
	}
	if m.offset.Known() {
		parts = append(parts, "offset "+m.offset.Duration().Round(time.Millisecond).String())
	} else {
		parts = append(parts, "not synced")
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderRow(i int, r row) string {
	pointer := "  "
	title := titleStyle.Render(ansi.Truncate(r.event.Title, titleWidth, "…"))
	if i == m.cursor {
		pointer = selectedStyle.Render("> ")
		title = selectedStyle.Render(ansi.Truncate(r.event.Title, titleWidth, "…"))
	}

	badge := tierStyle(r.frame.Tier).Render(fmt.Sprintf("%-7s", r.frame.Tier))
	remaining := tierStyle(r.frame.Tier).Render(fmt.Sprintf("%-16s", r.frame.Label))
	due := dimStyle.Render(r.frame.Due.In(m.loc).Format("Mon 02 Jan 2006 15:04"))

	line := fmt.Sprintf("%s%s %s %s %s", pointer, badge, padRight(title, titleWidth), remaining, due)
	if r.event.RepeatInterval != "" && r.event.RepeatInterval != string(countdown.RuleNone) {
		line += dimStyle.Render(" ↻ " + r.event.RepeatInterval)
	}
	return line
}

func padRight(s string, width int) string {
	if w := ansi.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
