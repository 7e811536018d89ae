package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of the text renderer.
// Tokyo Night palette.
type Theme struct {
	TextPrimary lipgloss.Color // Field text
	TextDim     lipgloss.Color // Labels
	TextMuted   lipgloss.Color // Ranges and hex offsets

	Accent  lipgloss.Color // Frame headers
	Purple  lipgloss.Color // Protocol subtrees
	Info    lipgloss.Color // Notes
	Warning lipgloss.Color // Warnings
	Error   lipgloss.Color // Errors
}

// DefaultTheme is the dark theme shared with the summary output.
var DefaultTheme = Theme{
	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	TextMuted:   lipgloss.Color("#414868"),

	Accent:  lipgloss.Color("#7aa2f7"), // Blue
	Purple:  lipgloss.Color("#bb9af7"), // Purple
	Info:    lipgloss.Color("#7dcfff"), // Cyan
	Warning: lipgloss.Color("#e0af68"), // Amber
	Error:   lipgloss.Color("#f7768e"), // Red/Pink
}

// Styles provides pre-configured lipgloss styles using the theme.
type Styles struct {
	Header   lipgloss.Style
	Protocol lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Range    lipgloss.Style
	Note     lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
}

// NewStyles creates styles from a theme for output written to w. Color is
// only emitted when w is a terminal that supports it.
func NewStyles(w io.Writer, t Theme) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Header: r.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		Protocol: r.NewStyle().
			Foreground(t.Purple).
			Bold(true),
		Label:   r.NewStyle().Foreground(t.TextDim),
		Value:   r.NewStyle().Foreground(t.TextPrimary),
		Range:   r.NewStyle().Foreground(t.TextMuted),
		Note:    r.NewStyle().Foreground(t.Info),
		Warning: r.NewStyle().Foreground(t.Warning),
		Error:   r.NewStyle().Foreground(t.Error).Bold(true),
	}
}
