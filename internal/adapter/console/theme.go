package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette, readable on light and dark terminals.
var (
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// Symbols used in rendered output.
const (
	symbolWarning = "[!]"
	symbolError   = "[ERR]"
	symbolBullet  = "*"
)

// styles holds the lipgloss styles bound to one output writer.
type styles struct {
	author  lipgloss.Style
	warning lipgloss.Style
	errText lipgloss.Style
	detail  lipgloss.Style
	notice  lipgloss.Style
	prompt  lipgloss.Style
}

// newStyles binds the styles to w. NO_COLOR (https://no-color.org/) is
// respected automatically by lipgloss via termenv, and output that is not a
// terminal is rendered without styling.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		author:  r.NewStyle().Foreground(colorAccent).Bold(true),
		warning: r.NewStyle().Foreground(colorWarning),
		errText: r.NewStyle().Foreground(colorError).Bold(true),
		detail:  r.NewStyle().Foreground(colorMuted),
		notice:  r.NewStyle().Foreground(colorInfo).Italic(true),
		prompt:  r.NewStyle().Foreground(colorInfo).Bold(true),
	}
}
