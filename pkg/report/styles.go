package report

import "github.com/charmbracelet/lipgloss"

// Color palette shared by console reports.
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	amber       = lipgloss.Color("#FFD580")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

// styles are bound to the renderer of the output they are written to, so
// colors are dropped when the output is not a terminal.
type styles struct {
	header    lipgloss.Style
	section   lipgloss.Style
	label     lipgloss.Style
	muted     lipgloss.Style
	succeeded lipgloss.Style
	failed    lipgloss.Style
	running   lipgloss.Style
	box       lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().
			Foreground(brightWhite).
			Bold(true),
		section: r.NewStyle().
			Foreground(salmonPink).
			Bold(true),
		label: r.NewStyle().
			Foreground(brightWhite),
		muted: r.NewStyle().
			Foreground(mutedGray),
		succeeded: r.NewStyle().
			Foreground(mintGreen).
			Bold(true),
		failed: r.NewStyle().
			Foreground(salmonPink).
			Bold(true),
		running: r.NewStyle().
			Foreground(amber),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1),
	}
}
