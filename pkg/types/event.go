package types

// LifecycleEventType defines the type of lifecycle event emitted by the build host.
type LifecycleEventType string

const (
	EventTypeSessionStarted   LifecycleEventType = "SessionStarted"   // EventTypeSessionStarted indicates the build session has started.
	EventTypeSessionEnded     LifecycleEventType = "SessionEnded"     // EventTypeSessionEnded indicates the build session has ended.
	EventTypeProjectStarted   LifecycleEventType = "ProjectStarted"   // EventTypeProjectStarted indicates a project build has started.
	EventTypeProjectSucceeded LifecycleEventType = "ProjectSucceeded" // EventTypeProjectSucceeded indicates a project built successfully.
	EventTypeProjectFailed    LifecycleEventType = "ProjectFailed"    // EventTypeProjectFailed indicates a project build failed.
	EventTypeMojoStarted      LifecycleEventType = "MojoStarted"      // EventTypeMojoStarted indicates a goal execution has started.
	EventTypeMojoSucceeded    LifecycleEventType = "MojoSucceeded"    // EventTypeMojoSucceeded indicates a goal execution succeeded.
	EventTypeMojoFailed       LifecycleEventType = "MojoFailed"       // EventTypeMojoFailed indicates a goal execution failed.
)

// Prefixes of the project and goal execution event type names.
const (
	ProjectEventPrefix = "Project"
	MojoEventPrefix    = "Mojo"
)

// LifecycleEvent represents one lifecycle transition reported by the build host.
type LifecycleEvent struct {
	// Type indicates the kind of event.
	Type LifecycleEventType `json:"type"`

	// Project is the module the event refers to. For session events it is the
	// top-level project of the build.
	Project *ProjectInfo `json:"project,omitempty"`

	// Session is the active execution context.
	Session *SessionInfo `json:"session,omitempty"`

	// Mojo identifies the goal execution (for Mojo* events).
	Mojo *MojoExecution `json:"mojo,omitempty"`

	// WorkerID identifies the host worker that delivered the event. Parallel
	// builds run goal executions on several workers.
	WorkerID string `json:"worker_id,omitempty"`
}

// ProjectInfo identifies one buildable module.
type ProjectInfo struct {
	GroupID    string `json:"group_id"`
	ArtifactID string `json:"artifact_id"`
	Version    string `json:"version"`

	// BaseDir is the module's base directory on disk.
	BaseDir string `json:"base_dir,omitempty"`
}

// SessionInfo carries the host's execution context.
type SessionInfo struct {
	// Request holds the parameters the build was invoked with.
	Request *ExecutionRequest `json:"request,omitempty"`

	// Goals are the goals requested for the session.
	Goals []string `json:"goals,omitempty"`

	// SortedProjects is the dependency-sorted build order.
	SortedProjects []ProjectInfo `json:"sorted_projects,omitempty"`

	// HasExceptions reports whether the build ended with unhandled exceptions.
	HasExceptions bool `json:"has_exceptions,omitempty"`
}

// ExecutionRequest holds the invocation parameters of a build.
type ExecutionRequest struct {
	UserSettingsFile    string            `json:"user_settings_file,omitempty"`
	DegreeOfConcurrency int               `json:"degree_of_concurrency,omitempty"`
	ActiveProfiles      []string          `json:"active_profiles,omitempty"`
	UserProperties      map[string]string `json:"user_properties,omitempty"`
	Goals               []string          `json:"goals,omitempty"`
}

// MojoExecution identifies one goal execution within a project.
type MojoExecution struct {
	// Plugin coordinates.
	GroupID    string `json:"group_id"`
	ArtifactID string `json:"artifact_id"`
	Version    string `json:"version"`

	ExecutionID string `json:"execution_id"`
	Goal        string `json:"goal"`
}

// NewSessionStartedEvent creates a session started event.
func NewSessionStartedEvent(project ProjectInfo, session *SessionInfo) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    EventTypeSessionStarted,
		Project: &project,
		Session: session,
	}
}

// NewSessionEndedEvent creates a session ended event.
func NewSessionEndedEvent(project ProjectInfo, session *SessionInfo) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    EventTypeSessionEnded,
		Project: &project,
		Session: session,
	}
}

// NewProjectStartedEvent creates a project started event.
func NewProjectStartedEvent(project ProjectInfo) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    EventTypeProjectStarted,
		Project: &project,
	}
}

// NewProjectSucceededEvent creates a project succeeded event.
func NewProjectSucceededEvent(project ProjectInfo) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    EventTypeProjectSucceeded,
		Project: &project,
	}
}

// NewProjectFailedEvent creates a project failed event.
func NewProjectFailedEvent(project ProjectInfo) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    EventTypeProjectFailed,
		Project: &project,
	}
}

// NewMojoStartedEvent creates a goal execution started event.
func NewMojoStartedEvent(project ProjectInfo, mojo MojoExecution, workerID string) *LifecycleEvent {
	return &LifecycleEvent{
		Type:     EventTypeMojoStarted,
		Project:  &project,
		Mojo:     &mojo,
		WorkerID: workerID,
	}
}

// NewMojoSucceededEvent creates a goal execution succeeded event.
func NewMojoSucceededEvent(project ProjectInfo, mojo MojoExecution, workerID string) *LifecycleEvent {
	return &LifecycleEvent{
		Type:     EventTypeMojoSucceeded,
		Project:  &project,
		Mojo:     &mojo,
		WorkerID: workerID,
	}
}

// NewMojoFailedEvent creates a goal execution failed event.
func NewMojoFailedEvent(project ProjectInfo, mojo MojoExecution, workerID string) *LifecycleEvent {
	return &LifecycleEvent{
		Type:     EventTypeMojoFailed,
		Project:  &project,
		Mojo:     &mojo,
		WorkerID: workerID,
	}
}

// IsSessionEvent returns true if this is any session-related event.
func (e *LifecycleEvent) IsSessionEvent() bool {
	return e.Type == EventTypeSessionStarted ||
		e.Type == EventTypeSessionEnded
}

// IsProjectEvent returns true if this is any project-related event.
func (e *LifecycleEvent) IsProjectEvent() bool {
	return e.Type == EventTypeProjectStarted ||
		e.Type == EventTypeProjectSucceeded ||
		e.Type == EventTypeProjectFailed
}

// IsMojoEvent returns true if this is any goal execution event.
func (e *LifecycleEvent) IsMojoEvent() bool {
	return e.Type == EventTypeMojoStarted ||
		e.Type == EventTypeMojoSucceeded ||
		e.Type == EventTypeMojoFailed
}

// IsTerminal returns true if the event ends a project or a goal execution.
func (e *LifecycleEvent) IsTerminal() bool {
	return e.Type == EventTypeProjectSucceeded ||
		e.Type == EventTypeProjectFailed ||
		e.Type == EventTypeMojoSucceeded ||
		e.Type == EventTypeMojoFailed
}

// IsKnown returns true if the event type is a recognized lifecycle type.
func (e *LifecycleEvent) IsKnown() bool {
	return e.IsSessionEvent() || e.IsProjectEvent() || e.IsMojoEvent()
}
