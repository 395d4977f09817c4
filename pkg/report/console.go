// Package report renders human-readable summaries of session profiles.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/buildscan/pkg/profile"
)

// DefaultSlowest is the number of slowest goal executions listed by default.
const DefaultSlowest = 5

// Printer writes console summaries.
type Printer struct {
	writer  io.Writer
	styles  styles
	slowest int
}

// NewPrinter creates a printer writing to w. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		writer:  w,
		styles:  newStyles(lipgloss.NewRenderer(w)),
		slowest: DefaultSlowest,
	}
}

// WithSlowest sets how many of the slowest goal executions are listed.
func (p *Printer) WithSlowest(n int) *Printer {
	p.slowest = n
	return p
}

// Summary prints the summary of a session.
func (p *Printer) Summary(session *profile.Session) {
	var b strings.Builder

	b.WriteString(p.styles.header.Render("BUILD SCAN SUMMARY"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Project: "), session.Project)
	fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Session: "), session.ID)
	fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Status:  "), p.status(session.Status))
	fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Duration:"), formatDuration(session.Duration()))
	if session.Branch != "" {
		fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Branch:  "), session.Branch)
	}
	if session.Command != "" {
		fmt.Fprintf(&b, "%s %s\n", p.styles.label.Render("Command: "), p.styles.muted.Render(session.Command))
	}

	fmt.Fprintln(p.writer, p.styles.box.Render(strings.TrimRight(b.String(), "\n")))

	p.printProjects(session)
	p.printSlowest(session)
}

func (p *Printer) printProjects(session *profile.Session) {
	if len(session.Projects) == 0 {
		return
	}

	counts := session.Counts()
	fmt.Fprintf(p.writer, "\n%s %s\n", p.styles.section.Render("▶ Projects"),
		p.styles.muted.Render(fmt.Sprintf("(%d succeeded, %d failed, %d not finished)",
			counts[profile.StatusSucceeded],
			counts[profile.StatusFailed],
			counts[profile.StatusPending]+counts[profile.StatusStarted])))

	width := 0
	for _, project := range session.Projects {
		if n := len(project.Coordinates.ID()); n > width {
			width = n
		}
	}
	for _, project := range session.Projects {
		fmt.Fprintf(p.writer, "  %s  %-*s  %s\n",
			p.status(project.Status),
			width, project.Coordinates.ID(),
			p.styles.muted.Render(formatDuration(project.Duration())))
	}
}

func (p *Printer) printSlowest(session *profile.Session) {
	slowest := session.SlowestMojos(p.slowest)
	if len(slowest) == 0 || p.slowest == 0 {
		return
	}

	fmt.Fprintf(p.writer, "\n%s\n", p.styles.section.Render("▶ Slowest goals"))
	for i, ref := range slowest {
		fmt.Fprintf(p.writer, "  %d. %s %s %s\n",
			i+1,
			ref.Mojo.Name(),
			p.styles.muted.Render("in "+ref.Project.Coordinates.ID()),
			formatDuration(ref.Mojo.Duration()))
	}
}

func (p *Printer) status(status profile.Status) string {
	switch status {
	case profile.StatusSucceeded:
		return p.styles.succeeded.Render("✓ SUCCEEDED")
	case profile.StatusFailed:
		return p.styles.failed.Render("✗ FAILED")
	case profile.StatusStarted:
		return p.styles.running.Render("… STARTED")
	default:
		return p.styles.muted.Render("· " + string(status))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
