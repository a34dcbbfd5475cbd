// Package ui provides the terminal styling helpers used by CLI output.
// Styling degrades to plain text when stdout is not a TTY or when color is
// disabled.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

var colorEnabled = detectColor()

func detectColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// DisableColor forces plain output, e.g. for --no-color.
func DisableColor() {
	colorEnabled = false
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles an error marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles an informational highlight.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim styles secondary detail.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderBold styles a heading.
func RenderBold(s string) string { return render(boldStyle, s) }
