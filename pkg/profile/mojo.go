package profile

import "fmt"

// Mojo records one goal execution within a project.
type Mojo struct {
	Plugin      Coordinates `json:"plugin"`
	ExecutionID string      `json:"execution_id"`
	Goal        string      `json:"goal"`
	Status      Status      `json:"status"`

	// Thread is the index of the host worker that ran the goal.
	Thread int `json:"thread"`

	Timing
}

// MojoKey identifies a goal execution. The same goal may run several times in
// one project with different execution ids.
type MojoKey struct {
	Plugin      Coordinates
	ExecutionID string
	Goal        string
}

// NewMojo creates a PENDING goal execution record.
func NewMojo(plugin Coordinates, executionID, goal string, thread int) *Mojo {
	return &Mojo{
		Plugin:      plugin,
		ExecutionID: executionID,
		Goal:        goal,
		Status:      StatusPending,
		Thread:      thread,
	}
}

// Key returns the composite identity of the execution.
func (m *Mojo) Key() MojoKey {
	return MojoKey{Plugin: m.Plugin, ExecutionID: m.ExecutionID, Goal: m.Goal}
}

// Name returns a short display name, e.g. "maven-compiler-plugin:compile (default-compile)".
func (m *Mojo) Name() string {
	return fmt.Sprintf("%s:%s (%s)", m.Plugin.ArtifactID, m.Goal, m.ExecutionID)
}

// SetStatus moves the execution to next, rejecting backward moves.
func (m *Mojo) SetStatus(next Status) error {
	return transition(&m.Status, next)
}

// String returns the full identity of the key.
func (k MojoKey) String() string {
	return fmt.Sprintf("%s:%s (%s)", k.Plugin, k.Goal, k.ExecutionID)
}
