package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/buildscan/pkg/profile"
)

// Markdown renders the summary of a session as markdown.
func Markdown(session *profile.Session, slowest int) string {
	var md strings.Builder

	md.WriteString("# Build Scan Summary\n\n")
	md.WriteString(fmt.Sprintf("**Project:** %s\n\n", session.Project))
	md.WriteString(fmt.Sprintf("**Session:** %s\n\n", session.ID))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", session.Status))
	if !session.StartTime.IsZero() {
		md.WriteString(fmt.Sprintf("**Started:** %s\n\n", session.StartTime.Format(time.RFC3339)))
	}
	if !session.EndTime.IsZero() {
		md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", session.EndTime.Format(time.RFC3339)))
	}
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", formatDuration(session.Duration())))
	if session.Branch != "" {
		md.WriteString(fmt.Sprintf("**Branch:** %s\n\n", session.Branch))
	}
	if session.Command != "" {
		md.WriteString(fmt.Sprintf("**Command:** `%s`\n\n", session.Command))
	}

	if len(session.Projects) > 0 {
		md.WriteString("## Projects\n\n")
		md.WriteString("| Project | Status | Duration | Goals |\n")
		md.WriteString("|---------|--------|----------|-------|\n")
		for _, p := range session.Projects {
			md.WriteString(fmt.Sprintf("| %s | %s %s | %s | %d |\n",
				p.Coordinates.ID(), statusIcon(p.Status), p.Status, formatDuration(p.Duration()), len(p.Mojos)))
		}
		md.WriteString("\n")
	}

	if refs := session.SlowestMojos(slowest); len(refs) > 0 && slowest != 0 {
		md.WriteString("## Slowest Goals\n\n")
		for i, ref := range refs {
			md.WriteString(fmt.Sprintf("%d. `%s` in %s (%s, thread %d)\n",
				i+1, ref.Mojo.Name(), ref.Project.Coordinates.ID(), formatDuration(ref.Mojo.Duration()), ref.Mojo.Thread))
		}
		md.WriteString("\n")
	}

	return md.String()
}

// WriteSummaryMarkdown writes the markdown summary of a session to path.
func WriteSummaryMarkdown(path string, session *profile.Session) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(Markdown(session, DefaultSlowest)), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

func statusIcon(status profile.Status) string {
	switch status {
	case profile.StatusSucceeded:
		return "✅"
	case profile.StatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}
