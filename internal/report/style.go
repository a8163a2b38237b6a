package report

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")

	Muted = lipgloss.Color("#6C7280")
	Text  = lipgloss.Color("#ECEFF4")
)

// Palette groups the colors a report is drawn with.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
}

func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Text:      Text,
		TextMuted: Muted,
	}
}

// Styles holds the rendered report sections.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Panel   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Label   lipgloss.Style
	Good    lipgloss.Style
	Bad     lipgloss.Style
	Warn    lipgloss.Style
}

func NewStyles(palette Palette) Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			Margin(1, 0),

		Section: lipgloss.NewStyle().
			Foreground(palette.Secondary).
			Bold(true).
			MarginTop(1),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.TextMuted).
			Padding(0, 1),

		Header: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			PaddingRight(2),

		Cell: lipgloss.NewStyle().
			Foreground(palette.Text).
			PaddingRight(2),

		Label: lipgloss.NewStyle().
			Foreground(palette.TextMuted),

		Good: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),

		Bad: lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true),

		Warn: lipgloss.NewStyle().
			Foreground(palette.Warning),
	}
}
