package screen

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultStyle is applied when a parent does not name one.
const DefaultStyle = "EQH"

// ThemeConfig is the configurable part of a theme.
type ThemeConfig struct {
	Accent string `yaml:"accent"`
	Muted  string `yaml:"muted"`
	Error  string `yaml:"error"`
}

// Theme is a resolved set of terminal styles.
type Theme struct {
	Name   string
	Title  lipgloss.Style
	Muted  lipgloss.Style
	Error  lipgloss.Style
	Border lipgloss.Style
}

// BuiltinThemes are always available.
var BuiltinThemes = map[string]ThemeConfig{
	"default": {Accent: "#3c78d8", Muted: "#888888", Error: "#cc0000"},
	"eqh":     {Accent: "#8e5b2f", Muted: "#a59a8c", Error: "#b00020"},
}

// LoadTheme resolves a style name (case-insensitive) against the configured
// themes, then the builtin ones. An unknown style is an error.
func LoadTheme(style string, configured map[string]ThemeConfig) (Theme, error) {
	name := strings.ToLower(strings.TrimSpace(style))
	cfg, ok := configured[name]
	if !ok {
		cfg, ok = BuiltinThemes[name]
	}
	if !ok {
		return Theme{}, fmt.Errorf("unknown style %q", style)
	}
	return NewTheme(name, cfg), nil
}

// NewTheme builds the lipgloss styles for cfg.
func NewTheme(name string, cfg ThemeConfig) Theme {
	return Theme{
		Name:   name,
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(cfg.Accent)),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Muted)),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(cfg.Error)),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(cfg.Accent)).Padding(0, 1),
	}
}
