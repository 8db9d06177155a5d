package console

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/pocketbench/internal/models"
)

// Theme is a named color palette (ANSI-256 codes).
type Theme struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Border     string
	Selected   string
	Running    string
	Success    string
	Error      string
	Info       string
}

// DefaultTheme is the dark palette.
var DefaultTheme = Theme{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Border:     "240",
	Selected:   "111",
	Running:    "214",
	Success:    "41",
	Error:      "203",
	Info:       "117",
}

// HighContrastTheme trades color nuance for legibility.
var HighContrastTheme = Theme{
	Name:       "high-contrast",
	Foreground: "15",
	Muted:      "250",
	Accent:     "51",
	Border:     "15",
	Selected:   "226",
	Running:    "208",
	Success:    "46",
	Error:      "196",
	Info:       "51",
}

// Themes lists palettes by name.
var Themes = map[string]Theme{
	DefaultTheme.Name:      DefaultTheme,
	HighContrastTheme.Name: HighContrastTheme,
}

// ThemeByName resolves a palette; "" selects the default.
func ThemeByName(name string) (Theme, error) {
	if name == "" {
		return DefaultTheme, nil
	}
	theme, ok := Themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("invalid theme %q", name)
	}
	return theme, nil
}

type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	selected lipgloss.Style
	running  lipgloss.Style
	tabOn    lipgloss.Style
	tabOff   lipgloss.Style
	frame    lipgloss.Style
	notice   map[models.Severity]lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Selected)).Bold(true),
		running:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Running)).Bold(true),
		tabOn:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Selected)).Bold(true).Underline(true),
		tabOff:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		frame:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(t.Border)),
		notice: map[models.Severity]lipgloss.Style{
			models.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Info)),
			models.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)),
			models.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error)).Bold(true),
		},
	}
}
