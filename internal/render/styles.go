package render

import "github.com/charmbracelet/lipgloss"

var (
	ownColor   = lipgloss.Color("#10B981")
	peerColor  = lipgloss.Color("#7C3AED")
	mutedColor = lipgloss.Color("#9CA3AF")
	errorColor = lipgloss.Color("#EF4444")
)

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	muted    lipgloss.Style
	empty    lipgloss.Style
	errText  lipgloss.Style
	own      lipgloss.Style
	peer     lipgloss.Style
	ownName  lipgloss.Style
	peerName lipgloss.Style
	badge    lipgloss.Style
	status   lipgloss.Style
	section  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		muted:    lipgloss.NewStyle().Foreground(mutedColor),
		empty:    lipgloss.NewStyle().Faint(true),
		errText:  lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		own:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ownColor).Padding(0, 1),
		peer:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(peerColor).Padding(0, 1),
		ownName:  lipgloss.NewStyle().Foreground(ownColor).Bold(true),
		peerName: lipgloss.NewStyle().Foreground(peerColor).Bold(true),
		badge:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		section:  lipgloss.NewStyle().MarginTop(1),
	}
}
