package main

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#64748B")
	colorPrimary = lipgloss.Color("#7C3AED")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	idStyle      = lipgloss.NewStyle().Bold(true)
	itemStyle    = lipgloss.NewStyle().PaddingLeft(2)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return successStyle
	case "failed":
		return errorStyle
	case "printing":
		return warningStyle
	default:
		return mutedStyle
	}
}
