package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/tazhate/countdowns/internal/countdown"
)

var (
	baseStyle     = lipgloss.NewStyle().Margin(1, 2)
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	inputStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205")).Padding(0, 1).Width(50)
)

var tierStyles = map[countdown.Tier]lipgloss.Style{
	countdown.TierOverdue: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true),
	countdown.TierRed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	countdown.TierOrange:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	countdown.TierYellow:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	countdown.TierGreen:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	countdown.TierCyan:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	countdown.TierBlue:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	countdown.TierPurple:  lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
}

func tierStyle(t countdown.Tier) lipgloss.Style {
	if s, ok := tierStyles[t]; ok {
		return s
	}
	return dimStyle
}
