package ui

import "github.com/charmbracelet/lipgloss"

var (
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Sapphire = lipgloss.Color("#74c7ec")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	Title    = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Header   = lipgloss.NewStyle().Foreground(Text).Bold(true).Underline(true)
	Muted    = lipgloss.NewStyle().Foreground(Subtext0)
	Selected = lipgloss.NewStyle().Background(Surface1)
	Notice   = lipgloss.NewStyle().Foreground(Peach)
	Failure  = lipgloss.NewStyle().Foreground(Red).Bold(true)
)
