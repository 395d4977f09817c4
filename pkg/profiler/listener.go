package profiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/entrhq/buildscan/pkg/config"
	"github.com/entrhq/buildscan/pkg/logging"
	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/storage"
	"github.com/entrhq/buildscan/pkg/types"
)

// ErrMalformedEvent is returned when an event lacks the fields its type requires.
var ErrMalformedEvent = errors.New("malformed lifecycle event")

// Listener builds the profile of one build session from lifecycle events.
// It is safe for concurrent use; events are applied one at a time.
type Listener struct {
	enabled   bool
	interval  time.Duration
	viewerURL string
	redact    []glob.Glob

	factory storage.Factory
	env     Environment
	now     func() time.Time
	newID   func() string
	logger  *logging.Logger

	mu             sync.Mutex
	session        *profile.Session
	store          storage.Storage
	ended          bool
	lastCheckpoint time.Time
	threads        map[string]int
}

// Option configures a Listener.
type Option func(*Listener)

// WithEnvironment sets where hostname, user name and branch are read from.
func WithEnvironment(env Environment) Option {
	return func(l *Listener) {
		l.env = env
	}
}

// WithClock sets the time source used for timings and the checkpoint policy.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithIDGenerator sets how session ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(l *Listener) {
		l.newID = newID
	}
}

// New creates a listener. When cfg.Enabled is false the listener ignores every
// event and never touches storage.
func New(cfg *config.Config, factory storage.Factory, opts ...Option) (*Listener, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	redact, err := CompilePatterns(cfg.RedactProperties)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		enabled:   cfg.Enabled,
		interval:  cfg.CheckpointInterval,
		viewerURL: cfg.ViewerURL,
		redact:    redact,
		factory:   factory,
		env:       SystemEnvironment{},
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		logger:    logging.New("profiler"),
		threads:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.enabled && l.factory == nil {
		return nil, errors.New("storage factory is required when profiling is enabled")
	}

	l.lastCheckpoint = l.now()
	return l, nil
}

// Enabled reports whether the listener records events.
func (l *Listener) Enabled() bool {
	return l.enabled
}

// Session returns the profile being recorded, or nil before the session started.
func (l *Listener) Session() *profile.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Handle applies one lifecycle event. Unknown and out-of-order events are
// ignored. Errors are returned for storage failures and for events that
// reference projects or goal executions the session does not know.
func (l *Listener) Handle(ctx context.Context, event *types.LifecycleEvent) error {
	if !l.enabled || event == nil || !event.IsKnown() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Type == types.EventTypeSessionStarted {
		if l.session != nil {
			l.logger.Debugf("Ignoring %s: session %s already started", event.Type, l.session.ID)
			return nil
		}
		return l.sessionStarted(ctx, event)
	}

	if l.session == nil || l.ended {
		l.logger.Debugf("Ignoring %s outside of an active session", event.Type)
		return nil
	}

	switch event.Type {
	case types.EventTypeSessionEnded:
		return l.sessionEnded(ctx, event)
	case types.EventTypeProjectStarted:
		return l.projectStarted(event)
	case types.EventTypeProjectSucceeded, types.EventTypeProjectFailed:
		return l.projectFinished(ctx, event)
	case types.EventTypeMojoStarted:
		return l.mojoStarted(event)
	case types.EventTypeMojoSucceeded, types.EventTypeMojoFailed:
		return l.mojoFinished(event)
	}
	return nil
}

func (l *Listener) sessionStarted(ctx context.Context, event *types.LifecycleEvent) error {
	if event.Project == nil {
		return fmt.Errorf("%w: %s without project", ErrMalformedEvent, event.Type)
	}

	session := profile.NewSession(l.newID(), coordinates(*event.Project))

	hostname, err := l.env.Hostname()
	if err != nil {
		l.logger.Warnf("Failed to resolve hostname: %v", err)
		hostname = ""
	}
	session.Hostname = hostname

	username, err := l.env.Username()
	if err != nil {
		l.logger.Warnf("Failed to resolve user name: %v", err)
		username = ""
	}
	session.Username = username

	var request *types.ExecutionRequest
	if event.Session != nil {
		request = event.Session.Request
		session.Goals = append(session.Goals, event.Session.Goals...)
	}
	session.Command = CommandLine(request, l.redact)

	branch, err := l.env.Branch(event.Project.BaseDir)
	if err != nil {
		l.logger.Warnf("Branch unknown for %s: %v", event.Project.BaseDir, err)
		branch = ""
	}
	session.Branch = branch

	session.StartTime = l.now()

	l.logger.Infof("Creating build scanner session profile %s#%s", session.Project.ID(), session.ID)

	if event.Session != nil {
		for _, p := range event.Session.SortedProjects {
			session.AddProject(profile.NewProject(coordinates(p), profile.StatusPending))
		}
	}
	l.session = session

	store, err := l.factory(session)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Open(ctx); err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	l.store = store
	return nil
}

func (l *Listener) sessionEnded(ctx context.Context, event *types.LifecycleEvent) error {
	session := l.session
	session.EndTime = l.now()

	status := profile.StatusSucceeded
	if event.Session != nil && event.Session.HasExceptions {
		status = profile.StatusFailed
	}
	if err := session.SetStatus(status); err != nil {
		l.logger.Debugf("Ignoring session status change: %v", err)
	}
	l.ended = true

	var closeErr error
	if l.store != nil {
		if err := l.store.Close(ctx); err != nil {
			closeErr = fmt.Errorf("failed to close storage: %w", err)
		}
	}

	l.logger.Infof("Created build scanner session profile %s#%s", session.Project.ID(), session.ID)
	l.logger.Infof("Open %s to view your build scanner results", ViewerLink(l.viewerURL, session))
	return closeErr
}

func (l *Listener) projectStarted(event *types.LifecycleEvent) error {
	project, err := l.project(event)
	if err != nil {
		return err
	}

	if err := project.SetStatus(profile.StatusStarted); err != nil {
		l.logger.Debugf("Ignoring %s for %s: %v", event.Type, project.Coordinates, err)
		return nil
	}
	project.StartTime = l.now()
	return nil
}

func (l *Listener) projectFinished(ctx context.Context, event *types.LifecycleEvent) error {
	project, err := l.project(event)
	if err != nil {
		return err
	}

	status, err := eventStatus(event.Type, types.ProjectEventPrefix)
	if err != nil {
		return err
	}
	if err := project.SetStatus(status); err != nil {
		l.logger.Debugf("Ignoring %s for %s: %v", event.Type, project.Coordinates, err)
		return nil
	}

	now := l.now()
	project.EndTime = now
	l.session.EndTime = now

	return l.maybeCheckpoint(ctx)
}

func (l *Listener) mojoStarted(event *types.LifecycleEvent) error {
	if event.Mojo == nil {
		return fmt.Errorf("%w: %s without goal execution", ErrMalformedEvent, event.Type)
	}
	project, err := l.project(event)
	if err != nil {
		return err
	}

	mojo := profile.NewMojo(plugin(*event.Mojo), event.Mojo.ExecutionID, event.Mojo.Goal, l.threadIndex(event.WorkerID))
	mojo.StartTime = l.now()
	project.AddMojo(mojo)
	return nil
}

func (l *Listener) mojoFinished(event *types.LifecycleEvent) error {
	if event.Mojo == nil {
		return fmt.Errorf("%w: %s without goal execution", ErrMalformedEvent, event.Type)
	}
	project, err := l.project(event)
	if err != nil {
		return err
	}

	key := profile.MojoKey{
		Plugin:      plugin(*event.Mojo),
		ExecutionID: event.Mojo.ExecutionID,
		Goal:        event.Mojo.Goal,
	}
	mojo, err := project.Mojo(key)
	if err != nil {
		return fmt.Errorf("failed to handle %s: %w", event.Type, err)
	}

	status, err := eventStatus(event.Type, types.MojoEventPrefix)
	if err != nil {
		return err
	}
	if err := mojo.SetStatus(status); err != nil {
		l.logger.Debugf("Ignoring %s for %s: %v", event.Type, key, err)
		return nil
	}
	mojo.EndTime = l.now()
	return nil
}

// maybeCheckpoint persists the session when more than the checkpoint interval
// has elapsed since the previous checkpoint.
func (l *Listener) maybeCheckpoint(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	now := l.now()
	if now.Sub(l.lastCheckpoint) <= l.interval && l.interval > 0 {
		return nil
	}

	l.logger.Infof("Requesting check-point")
	l.lastCheckpoint = now
	if err := l.store.Checkpoint(ctx); err != nil {
		return fmt.Errorf("failed to checkpoint storage: %w", err)
	}
	return nil
}

// threadIndex maps a host worker id to a stable index starting at 1.
func (l *Listener) threadIndex(workerID string) int {
	if index, ok := l.threads[workerID]; ok {
		return index
	}
	index := len(l.threads) + 1
	l.threads[workerID] = index
	return index
}

func (l *Listener) project(event *types.LifecycleEvent) (*profile.Project, error) {
	if event.Project == nil {
		return nil, fmt.Errorf("%w: %s without project", ErrMalformedEvent, event.Type)
	}
	project, err := l.session.LookupProject(coordinates(*event.Project))
	if err != nil {
		return nil, fmt.Errorf("failed to handle %s: %w", event.Type, err)
	}
	return project, nil
}

// eventStatus derives the status carried by an event type name, e.g.
// "ProjectSucceeded" with prefix "Project" yields SUCCEEDED.
func eventStatus(eventType types.LifecycleEventType, prefix string) (profile.Status, error) {
	status, err := profile.ParseStatus(strings.TrimPrefix(string(eventType), prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	return status, nil
}

// ViewerLink returns the URL under which the viewer shows session.
func ViewerLink(viewerURL string, session *profile.Session) string {
	return fmt.Sprintf("%s/?projectId=%s&sessionId=%s",
		strings.TrimRight(viewerURL, "/"), session.Project.ID(), session.ID)
}

func coordinates(p types.ProjectInfo) profile.Coordinates {
	return profile.Coordinates{GroupID: p.GroupID, ArtifactID: p.ArtifactID, Version: p.Version}
}

func plugin(m types.MojoExecution) profile.Coordinates {
	return profile.Coordinates{GroupID: m.GroupID, ArtifactID: m.ArtifactID, Version: m.Version}
}
