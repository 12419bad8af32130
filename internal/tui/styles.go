package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the Whisper TUI style tokens.
type Theme struct {
	Name string

	Background string
	Foreground string
	Muted      string
	Accent     string

	OwnMessage   string
	OtherMessage string
	UnreadBadge  string
	Online       string

	Header       string
	Footer       string
	SelectedItem string
	ActivePane   string
	InactivePane string
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name:         "default",
	Background:   "234",
	Foreground:   "252",
	Muted:        "245",
	Accent:       "75",
	OwnMessage:   "81",
	OtherMessage: "147",
	UnreadBadge:  "203",
	Online:       "41",
	Header:       "111",
	Footer:       "110",
	SelectedItem: "75",
	ActivePane:   "75",
	InactivePane: "240",
}

// HighContrastTheme maximizes foreground/background separation.
var HighContrastTheme = Theme{
	Name:         "high-contrast",
	Background:   "16",
	Foreground:   "231",
	Muted:        "250",
	Accent:       "226",
	OwnMessage:   "51",
	OtherMessage: "213",
	UnreadBadge:  "196",
	Online:       "46",
	Header:       "226",
	Footer:       "231",
	SelectedItem: "226",
	ActivePane:   "226",
	InactivePane: "244",
}

// ThemeByName resolves a configured theme name, falling back to default.
func ThemeByName(name string) Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return DefaultTheme
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Header)).Bold(true)
}

func (t Theme) footerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Footer))
}

func (t Theme) mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted))
}

func (t Theme) selectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.SelectedItem)).Bold(true)
}

func (t Theme) unreadStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.UnreadBadge)).Bold(true)
}

func (t Theme) ownStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.OwnMessage))
}

func (t Theme) otherStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.OtherMessage))
}

func (t Theme) onlineStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Online))
}

func (t Theme) paneStyle(active bool) lipgloss.Style {
	color := t.InactivePane
	if active {
		color = t.ActivePane
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(color))
}
