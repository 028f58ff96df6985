package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines a complete color scheme for the application
type Theme struct {
	// Core colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	// Text colors
	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	TextMuted     lipgloss.Color

	// Semantic colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Border lipgloss.Color

	// Bottom bar context gauge
	GaugeWarn lipgloss.Color
	GaugeFull lipgloss.Color

	// Glamour style name for assistant markdown
	Markdown string
}

var DarkTheme = Theme{
	Primary:   lipgloss.Color("#4DB6AC"), // Teal 300
	Secondary: lipgloss.Color("#90CAF9"), // Blue 200
	Accent:    lipgloss.Color("#FFCC80"), // Orange 200

	TextPrimary:   lipgloss.Color("#F1F5F9"),
	TextSecondary: lipgloss.Color("#94A3B8"),
	TextMuted:     lipgloss.Color("#64748B"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),

	Border: lipgloss.Color("#333333"),

	GaugeWarn: lipgloss.Color("#FFF59D"),
	GaugeFull: lipgloss.Color("#EF9A9A"),

	Markdown: "dark",
}

var LightTheme = Theme{
	Primary:   lipgloss.Color("#00897B"), // Teal 600
	Secondary: lipgloss.Color("#1E88E5"), // Blue 600
	Accent:    lipgloss.Color("#F57C00"), // Orange 700

	TextPrimary:   lipgloss.Color("#18181B"),
	TextSecondary: lipgloss.Color("#52525B"),
	TextMuted:     lipgloss.Color("#A1A1AA"),

	Success: lipgloss.Color("#10B981"),
	Warning: lipgloss.Color("#F59E0B"),
	Error:   lipgloss.Color("#EF4444"),

	Border: lipgloss.Color("#E4E4E7"),

	GaugeWarn: lipgloss.Color("#F59E0B"),
	GaugeFull: lipgloss.Color("#EF4444"),

	Markdown: "light",
}

// CurrentTheme holds the active theme (set at runtime based on terminal)
var CurrentTheme = DarkTheme

// InitTheme sets the current theme based on terminal background
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}

// GaugeColor picks the bottom bar color for a context usage percentage.
func GaugeColor(pct int) lipgloss.Color {
	switch {
	case pct > 80:
		return CurrentTheme.GaugeFull
	case pct > 60:
		return CurrentTheme.GaugeWarn
	default:
		return CurrentTheme.TextMuted
	}
}
