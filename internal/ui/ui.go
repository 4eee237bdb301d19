// Package ui holds terminal rendering helpers for the tasksync CLI.
// Styling degrades to plain text when stdout is not a terminal or the
// environment reports no color support.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	strikeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Strikethrough(true)

	priorityStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	}
)

func colorEnabled() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

func RenderAccent(s string) string { return render(accentStyle, s) }
func RenderPass(s string) string   { return render(passStyle, s) }
func RenderWarn(s string) string   { return render(warnStyle, s) }
func RenderFail(s string) string   { return render(failStyle, s) }
func RenderMuted(s string) string  { return render(mutedStyle, s) }

// RenderDone renders a completed task title.
func RenderDone(s string) string { return render(strikeStyle, s) }

// RenderPriority renders a priority label in its severity color.
// Unstyled priorities ("none", unknown) pass through unchanged.
func RenderPriority(p string) string {
	style, ok := priorityStyles[p]
	if !ok {
		return p
	}
	return render(style, p)
}
