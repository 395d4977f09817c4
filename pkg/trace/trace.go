// Package trace exports session profiles in Chrome's Trace Event Format, which
// can be loaded into Perfetto or chrome://tracing.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/entrhq/buildscan/pkg/profile"
)

// EventType is the "ph" (phase) of a trace event.
type EventType string

const (
	TypeComplete EventType = "X"
	TypeMetadata EventType = "M"
)

// Process ids of the two lanes of an exported session.
const (
	GoalsProcessID    = 1
	ProjectsProcessID = 2
)

// Profile is a trace document in the JSON object format.
type Profile struct {
	OtherData   OtherData `json:"otherData"`
	TraceEvents []Event   `json:"traceEvents"`
}

// OtherData holds session metadata shown by trace viewers.
type OtherData struct {
	SessionID string `json:"session_id,omitempty"`
	Project   string `json:"project,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Command   string `json:"command,omitempty"`
	Status    string `json:"status,omitempty"`
	Date      string `json:"date,omitempty"`
}

// Event is a single trace event. Timestamps and durations are microseconds.
type Event struct {
	Name      string    `json:"name,omitempty"`
	Phase     EventType `json:"ph"`
	ProcessID int       `json:"pid"`
	ThreadID  int       `json:"tid"`
	Category  string    `json:"cat,omitempty"`
	TimeStamp int64     `json:"ts"`
	Duration  int64     `json:"dur,omitempty"`
	Args      Args      `json:"args,omitempty"`
}

// Args carries event details.
type Args struct {
	Name        string `json:"name,omitempty"`
	Project     string `json:"project,omitempty"`
	Plugin      string `json:"plugin,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	Status      string `json:"status,omitempty"`
	SortIndex   int    `json:"sort_index,omitempty"`
}

// Build converts a session into a trace profile. Goal executions become
// complete events on thread lanes matching the worker that ran them; projects
// become complete events on their own lane. Work without both a start and an
// end time is left out.
func Build(session *profile.Session) *Profile {
	origin := session.StartTime
	p := &Profile{
		OtherData: OtherData{
			SessionID: session.ID,
			Project:   session.Project.String(),
			Branch:    session.Branch,
			Command:   session.Command,
			Status:    string(session.Status),
		},
		TraceEvents: []Event{},
	}
	if !origin.IsZero() {
		p.OtherData.Date = origin.UTC().Format(time.RFC3339)
	}

	p.TraceEvents = append(p.TraceEvents,
		metadata("process_name", GoalsProcessID, 0, "goals"),
		metadata("process_sort_index", GoalsProcessID, 0, "").withSortIndex(1),
		metadata("process_name", ProjectsProcessID, 0, "projects"),
		metadata("process_sort_index", ProjectsProcessID, 0, "").withSortIndex(2),
	)

	threads := map[int]bool{}
	for _, ref := range session.Mojos() {
		m := ref.Mojo
		if !completed(m.Timing) {
			continue
		}
		threads[m.Thread] = true
		p.TraceEvents = append(p.TraceEvents, Event{
			Name:      m.Name(),
			Phase:     TypeComplete,
			ProcessID: GoalsProcessID,
			ThreadID:  m.Thread,
			Category:  "goal",
			TimeStamp: micros(m.StartTime.Sub(origin)),
			Duration:  micros(m.Duration()),
			Args: Args{
				Project:     ref.Project.Coordinates.ID(),
				Plugin:      m.Plugin.String(),
				ExecutionID: m.ExecutionID,
				Status:      string(m.Status),
			},
		})
	}

	indices := make([]int, 0, len(threads))
	for thread := range threads {
		indices = append(indices, thread)
	}
	sort.Ints(indices)
	for _, thread := range indices {
		p.TraceEvents = append(p.TraceEvents,
			metadata("thread_name", GoalsProcessID, thread, fmt.Sprintf("worker %d", thread)),
		)
	}

	for i, project := range session.Projects {
		if !completed(project.Timing) {
			continue
		}
		p.TraceEvents = append(p.TraceEvents, Event{
			Name:      project.Coordinates.ID(),
			Phase:     TypeComplete,
			ProcessID: ProjectsProcessID,
			ThreadID:  i + 1,
			Category:  "project",
			TimeStamp: micros(project.StartTime.Sub(origin)),
			Duration:  micros(project.Duration()),
			Args: Args{
				Status: string(project.Status),
			},
		})
		p.TraceEvents = append(p.TraceEvents,
			metadata("thread_name", ProjectsProcessID, i+1, project.Coordinates.ID()),
		)
	}

	return p
}

// Write encodes the trace of session to w.
func Write(w io.Writer, session *profile.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Build(session)); err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return nil
}

func metadata(name string, pid, tid int, value string) Event {
	return Event{
		Name:      name,
		Phase:     TypeMetadata,
		ProcessID: pid,
		ThreadID:  tid,
		Args:      Args{Name: value},
	}
}

func (e Event) withSortIndex(index int) Event {
	e.Args.SortIndex = index
	return e
}

func completed(t profile.Timing) bool {
	return !t.StartTime.IsZero() && !t.EndTime.IsZero() && !t.EndTime.Before(t.StartTime)
}

func micros(d time.Duration) int64 {
	return d.Microseconds()
}
