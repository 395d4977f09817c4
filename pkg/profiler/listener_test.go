package profiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/buildscan/pkg/config"
	"github.com/entrhq/buildscan/pkg/logging"
	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/storage"
	"github.com/entrhq/buildscan/pkg/types"
)

var (
	projectA = types.ProjectInfo{GroupID: "com.example", ArtifactID: "a", Version: "1.0", BaseDir: "/src/a"}
	projectB = types.ProjectInfo{GroupID: "com.example", ArtifactID: "b", Version: "1.0", BaseDir: "/src/b"}
	compile  = types.MojoExecution{GroupID: "org.apache.maven.plugins", ArtifactID: "maven-compiler-plugin", Version: "3.11.0", ExecutionID: "default-compile", Goal: "compile"}
)

// recordingStorage records every call together with the session status at
// the time of the call.
type recordingStorage struct {
	mu       sync.Mutex
	session  *profile.Session
	calls    []string
	statuses []profile.Status
	failOn   string
}

func (r *recordingStorage) record(ctx context.Context, call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.statuses = append(r.statuses, r.session.Status)
	if call == r.failOn {
		return errors.New("disk full")
	}
	return nil
}

func (r *recordingStorage) Open(ctx context.Context) error       { return r.record(ctx, "open") }
func (r *recordingStorage) Checkpoint(ctx context.Context) error { return r.record(ctx, "checkpoint") }
func (r *recordingStorage) Close(ctx context.Context) error      { return r.record(ctx, "close") }

func (r *recordingStorage) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeEnvironment struct {
	hostname  string
	username  string
	branch    string
	branchErr error
	hostErr   error
	branchDir string
}

func (f *fakeEnvironment) Hostname() (string, error) { return f.hostname, f.hostErr }
func (f *fakeEnvironment) Username() (string, error) { return f.username, nil }
func (f *fakeEnvironment) Branch(dir string) (string, error) {
	f.branchDir = dir
	return f.branch, f.branchErr
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	listener *Listener
	store    *recordingStorage
	env      *fakeEnvironment
	clock    *fakeClock
	logs     *bytes.Buffer
	created  int
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		env:   &fakeEnvironment{hostname: "build-01", username: "ci", branch: "main"},
		clock: newFakeClock(),
		logs:  &bytes.Buffer{},
	}
	factory := func(session *profile.Session) (storage.Storage, error) {
		h.created++
		h.store = &recordingStorage{session: session}
		return h.store, nil
	}

	listener, err := New(cfg, factory,
		WithEnvironment(h.env),
		WithClock(h.clock.Now),
		WithLogger(logging.New("profiler", logging.WithWriter(h.logs), logging.WithLevel(logging.LevelDebug))),
		WithIDGenerator(func() string { return "session-1" }),
	)
	require.NoError(t, err)
	h.listener = listener
	return h
}

func (h *harness) handle(t *testing.T, event *types.LifecycleEvent) {
	t.Helper()
	require.NoError(t, h.listener.Handle(context.Background(), event))
}

func sessionInfo(projects ...types.ProjectInfo) *types.SessionInfo {
	return &types.SessionInfo{
		Goals: []string{"install"},
		Request: &types.ExecutionRequest{
			UserSettingsFile:    "/home/ci/.m2/settings.xml",
			DegreeOfConcurrency: 4,
			ActiveProfiles:      []string{"ci"},
			UserProperties:      map[string]string{"skipTests": "true", "db.password": "hunter2"},
			Goals:               []string{"install"},
		},
		SortedProjects: projects,
	}
}

func TestEndToEndSession(t *testing.T) {
	h := newHarness(t, nil)

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA, projectB)))
	require.NotNil(t, h.store)
	assert.Equal(t, []string{"open"}, h.store.calls, "storage is opened before any project event")

	h.handle(t, types.NewProjectStartedEvent(projectA))
	h.clock.Advance(time.Second)
	h.handle(t, types.NewMojoStartedEvent(projectA, compile, "worker-1"))
	h.clock.Advance(2 * time.Second)
	h.handle(t, types.NewMojoSucceededEvent(projectA, compile, "worker-1"))
	h.handle(t, types.NewProjectSucceededEvent(projectA))
	h.handle(t, types.NewProjectStartedEvent(projectB))
	h.handle(t, types.NewProjectFailedEvent(projectB))
	h.handle(t, types.NewSessionEndedEvent(projectA, &types.SessionInfo{HasExceptions: true}))

	session := h.listener.Session()
	require.NotNil(t, session)
	assert.Equal(t, "session-1", session.ID)
	assert.Equal(t, profile.StatusFailed, session.Status)
	assert.Equal(t, "build-01", session.Hostname)
	assert.Equal(t, "ci", session.Username)
	assert.Equal(t, "main", session.Branch)
	assert.Equal(t, "/src/a", h.env.branchDir)
	assert.Equal(t, []string{"install"}, session.Goals)
	assert.Equal(t, "mvn -s /home/ci/.m2/settings.xml -T 4 -Pci -Ddb.password=*** -DskipTests=true install", session.Command)

	require.Len(t, session.Projects, 2)
	a, b := session.Projects[0], session.Projects[1]
	assert.Equal(t, profile.StatusSucceeded, a.Status)
	assert.Equal(t, profile.StatusFailed, b.Status)
	require.Len(t, a.Mojos, 1)
	assert.Equal(t, profile.StatusSucceeded, a.Mojos[0].Status)
	assert.Equal(t, 2*time.Second, a.Mojos[0].Duration())
	assert.Equal(t, 1, a.Mojos[0].Thread)
	assert.Empty(t, b.Mojos)

	assert.Equal(t, 1, h.created)
	assert.Equal(t, 1, h.store.count("open"))
	assert.Equal(t, 1, h.store.count("close"))
	assert.Equal(t, "close", h.store.calls[len(h.store.calls)-1])
	assert.Equal(t, profile.StatusFailed, h.store.statuses[len(h.store.statuses)-1], "close happens after the final status is set")

	logs := h.logs.String()
	assert.Contains(t, logs, "[INFO] Creating build scanner session profile com.example:a#session-1")
	assert.Contains(t, logs, "[INFO] Created build scanner session profile com.example:a#session-1")
	assert.Contains(t, logs, "Open http://localhost:3000/?projectId=com.example:a&sessionId=session-1 to view your build scanner results")
}

func TestSessionSucceedsWithoutExceptions(t *testing.T) {
	h := newHarness(t, nil)

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	h.handle(t, types.NewProjectStartedEvent(projectA))
	h.handle(t, types.NewProjectSucceededEvent(projectA))
	h.handle(t, types.NewSessionEndedEvent(projectA, &types.SessionInfo{}))

	assert.Equal(t, profile.StatusSucceeded, h.listener.Session().Status)
}

func TestDisabledListenerIsNoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = false

	factory := func(*profile.Session) (storage.Storage, error) {
		t.Fatal("storage must not be created when disabled")
		return nil, nil
	}
	env := &fakeEnvironment{}
	var logs bytes.Buffer
	listener, err := New(cfg, factory, WithEnvironment(env), WithLogger(logging.New("profiler", logging.WithWriter(&logs))))
	require.NoError(t, err)
	assert.False(t, listener.Enabled())

	ctx := context.Background()
	events := []*types.LifecycleEvent{
		types.NewSessionStartedEvent(projectA, sessionInfo(projectA)),
		types.NewProjectStartedEvent(projectA),
		types.NewMojoStartedEvent(projectA, compile, "w"),
		types.NewProjectSucceededEvent(projectA),
		types.NewSessionEndedEvent(projectA, &types.SessionInfo{}),
	}
	for _, event := range events {
		require.NoError(t, listener.Handle(ctx, event))
	}

	assert.Nil(t, listener.Session())
	assert.Empty(t, env.branchDir, "environment must not be consulted when disabled")
	assert.Empty(t, logs.String())
}

func TestCheckpointAtMostOncePerInterval(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.CheckpointInterval = 5 * time.Minute
	})

	projects := make([]types.ProjectInfo, 6)
	for i := range projects {
		projects[i] = types.ProjectInfo{GroupID: "com.example", ArtifactID: fmt.Sprintf("m%d", i), Version: "1"}
	}
	h.handle(t, types.NewSessionStartedEvent(projects[0], sessionInfo(projects...)))

	// Offsets from listener construction at which each project finishes.
	finish := []time.Duration{
		time.Minute,      // 1m: no checkpoint
		5 * time.Minute,  // 5m: exactly the interval, no checkpoint
		6 * time.Minute,  // 6m: checkpoint
		8 * time.Minute,  // 8m: no checkpoint
		11 * time.Minute, // 11m: exactly the interval since 6m, no checkpoint
		12 * time.Minute, // 12m: checkpoint
	}
	want := []int{0, 0, 1, 1, 1, 2}

	start := h.clock.Now()
	for i, offset := range finish {
		h.clock.Advance(start.Add(offset).Sub(h.clock.Now()))
		h.handle(t, types.NewProjectStartedEvent(projects[i]))
		h.handle(t, types.NewProjectSucceededEvent(projects[i]))
		assert.Equal(t, want[i], h.store.count("checkpoint"), "after project %d", i)
	}

	assert.Contains(t, h.logs.String(), "Requesting check-point")
}

func TestZeroIntervalCheckpointsEveryProject(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.CheckpointInterval = 0
	})

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA, projectB)))
	h.handle(t, types.NewProjectSucceededEvent(projectA))
	h.handle(t, types.NewProjectFailedEvent(projectB))

	assert.Equal(t, 2, h.store.count("checkpoint"))
}

func TestDuplicateGoalWithDistinctExecutionIDs(t *testing.T) {
	h := newHarness(t, nil)
	surefire := types.MojoExecution{GroupID: "org.apache.maven.plugins", ArtifactID: "maven-surefire-plugin", Version: "3.2.5", Goal: "test"}
	unit, integration := surefire, surefire
	unit.ExecutionID = "unit-tests"
	integration.ExecutionID = "integration-tests"

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	h.handle(t, types.NewProjectStartedEvent(projectA))
	h.handle(t, types.NewMojoStartedEvent(projectA, unit, "w1"))
	h.handle(t, types.NewMojoStartedEvent(projectA, integration, "w1"))
	h.handle(t, types.NewMojoFailedEvent(projectA, integration, "w1"))
	h.handle(t, types.NewMojoSucceededEvent(projectA, unit, "w1"))

	mojos := h.listener.Session().Projects[0].Mojos
	require.Len(t, mojos, 2)
	assert.Equal(t, "unit-tests", mojos[0].ExecutionID)
	assert.Equal(t, profile.StatusSucceeded, mojos[0].Status)
	assert.Equal(t, "integration-tests", mojos[1].ExecutionID)
	assert.Equal(t, profile.StatusFailed, mojos[1].Status)
}

func TestStatusesAreMonotonic(t *testing.T) {
	h := newHarness(t, nil)

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	h.handle(t, types.NewProjectStartedEvent(projectA))
	h.handle(t, types.NewMojoStartedEvent(projectA, compile, "w1"))
	h.handle(t, types.NewMojoSucceededEvent(projectA, compile, "w1"))
	h.handle(t, types.NewProjectSucceededEvent(projectA))

	// Late or repeated events must not move terminal statuses.
	h.handle(t, types.NewProjectFailedEvent(projectA))
	h.handle(t, types.NewProjectStartedEvent(projectA))

	project := h.listener.Session().Projects[0]
	assert.Equal(t, profile.StatusSucceeded, project.Status)
	assert.Equal(t, profile.StatusSucceeded, project.Mojos[0].Status)
}

func TestOutOfOrderEventsAreIgnored(t *testing.T) {
	h := newHarness(t, nil)

	// Before the session started.
	h.handle(t, types.NewProjectStartedEvent(projectA))
	h.handle(t, types.NewSessionEndedEvent(projectA, &types.SessionInfo{}))
	assert.Nil(t, h.listener.Session())
	assert.Nil(t, h.store)

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	// A second start keeps the first session and storage.
	h.handle(t, types.NewSessionStartedEvent(projectB, sessionInfo(projectB)))
	assert.Equal(t, 1, h.created)
	assert.Equal(t, "a", h.listener.Session().Project.ArtifactID)

	h.handle(t, types.NewSessionEndedEvent(projectA, &types.SessionInfo{}))
	// After the session ended.
	h.handle(t, types.NewProjectFailedEvent(projectA))
	h.handle(t, types.NewSessionEndedEvent(projectA, &types.SessionInfo{HasExceptions: true}))

	assert.Equal(t, profile.StatusPending, h.listener.Session().Projects[0].Status)
	assert.Equal(t, profile.StatusSucceeded, h.listener.Session().Status)
	assert.Equal(t, 1, h.store.count("close"))
	assert.Contains(t, h.logs.String(), "[DEBUG] Ignoring")
}

func TestNilAndUnknownEventsAreIgnored(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.listener.Handle(context.Background(), nil))
	require.NoError(t, h.listener.Handle(context.Background(), &types.LifecycleEvent{Type: "ForkStarted"}))
	assert.Nil(t, h.listener.Session())
}

func TestBranchFailureDegradesToUnknown(t *testing.T) {
	h := newHarness(t, nil)
	h.env.branchErr = errors.New("no git repository found")
	h.env.branch = ""
	h.env.hostErr = errors.New("lookup failed")

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))

	session := h.listener.Session()
	require.NotNil(t, session)
	assert.Equal(t, "", session.Branch)
	assert.Equal(t, "", session.Hostname)
	assert.Equal(t, []string{"open"}, h.store.calls, "the session is still recorded")
	assert.Contains(t, h.logs.String(), "[WARN] Branch unknown for /src/a")
	assert.Contains(t, h.logs.String(), "[WARN] Failed to resolve hostname")
}

func TestThreadIndexPerWorker(t *testing.T) {
	h := newHarness(t, nil)
	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))

	workers := []string{"pool-1-thread-1", "pool-1-thread-2", "pool-1-thread-1", "pool-1-thread-3"}
	for i, worker := range workers {
		mojo := compile
		mojo.ExecutionID = fmt.Sprintf("exec-%d", i)
		h.handle(t, types.NewMojoStartedEvent(projectA, mojo, worker))
	}

	mojos := h.listener.Session().Projects[0].Mojos
	require.Len(t, mojos, 4)
	assert.Equal(t, 1, mojos[0].Thread)
	assert.Equal(t, 2, mojos[1].Thread)
	assert.Equal(t, 1, mojos[2].Thread)
	assert.Equal(t, 3, mojos[3].Thread)
}

func TestConcurrentEvents(t *testing.T) {
	h := newHarness(t, nil)

	const workers = 8
	const perWorker = 25

	projects := make([]types.ProjectInfo, workers)
	for i := range projects {
		projects[i] = types.ProjectInfo{GroupID: "com.example", ArtifactID: fmt.Sprintf("m%d", i), Version: "1"}
	}
	h.handle(t, types.NewSessionStartedEvent(projects[0], sessionInfo(projects...)))

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2+workers*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			worker := fmt.Sprintf("worker-%d", w)
			project := projects[w]
			errs <- h.listener.Handle(ctx, types.NewProjectStartedEvent(project))
			for i := 0; i < perWorker; i++ {
				mojo := compile
				mojo.ExecutionID = fmt.Sprintf("exec-%d", i)
				errs <- h.listener.Handle(ctx, types.NewMojoStartedEvent(project, mojo, worker))
				errs <- h.listener.Handle(ctx, types.NewMojoSucceededEvent(project, mojo, worker))
			}
			errs <- h.listener.Handle(ctx, types.NewProjectSucceededEvent(project))
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h.handle(t, types.NewSessionEndedEvent(projects[0], &types.SessionInfo{}))

	session := h.listener.Session()
	threads := make(map[int]bool)
	for _, p := range session.Projects {
		assert.Equal(t, profile.StatusSucceeded, p.Status)
		require.Len(t, p.Mojos, perWorker)
		for _, m := range p.Mojos {
			assert.Equal(t, profile.StatusSucceeded, m.Status)
			assert.Equal(t, p.Mojos[0].Thread, m.Thread, "one worker per project")
		}
		threads[p.Mojos[0].Thread] = true
	}
	assert.Len(t, threads, workers)
}

func TestUnknownProjectIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))

	err := h.listener.Handle(context.Background(), types.NewProjectStartedEvent(projectB))
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrProjectNotFound))

	err = h.listener.Handle(context.Background(), types.NewMojoSucceededEvent(projectA, compile, "w1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrMojoNotFound))
}

func TestMalformedEvents(t *testing.T) {
	h := newHarness(t, nil)

	err := h.listener.Handle(context.Background(), &types.LifecycleEvent{Type: types.EventTypeSessionStarted})
	assert.True(t, errors.Is(err, ErrMalformedEvent))

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	err = h.listener.Handle(context.Background(), &types.LifecycleEvent{Type: types.EventTypeMojoStarted, Project: &projectA})
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestStorageErrorsAreReturned(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.CheckpointInterval = 0
	})

	h.handle(t, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	h.store.failOn = "checkpoint"

	err := h.listener.Handle(context.Background(), types.NewProjectSucceededEvent(projectA))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to checkpoint storage")
	assert.Equal(t, profile.StatusSucceeded, h.listener.Session().Projects[0].Status, "state is kept when persisting fails")

	h.store.failOn = "close"
	err = h.listener.Handle(context.Background(), types.NewSessionEndedEvent(projectA, &types.SessionInfo{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close storage")
	assert.Contains(t, h.logs.String(), "Created build scanner session profile", "end of session is still logged")
}

func TestOpenFailureKeepsRecording(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = true
	cfg.CheckpointInterval = 0

	store := &recordingStorage{failOn: "open"}
	factory := func(session *profile.Session) (storage.Storage, error) {
		store.session = session
		return store, nil
	}
	listener, err := New(cfg, factory, WithEnvironment(&fakeEnvironment{}), WithLogger(logging.Discard()))
	require.NoError(t, err)

	ctx := context.Background()
	err = listener.Handle(ctx, types.NewSessionStartedEvent(projectA, sessionInfo(projectA)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open storage")

	require.NoError(t, listener.Handle(ctx, types.NewProjectSucceededEvent(projectA)))
	require.NoError(t, listener.Handle(ctx, types.NewSessionEndedEvent(projectA, &types.SessionInfo{})))
	assert.Equal(t, []string{"open"}, store.calls, "an unopened storage is not used again")
	assert.Equal(t, profile.StatusSucceeded, listener.Session().Status)
}

func TestNewValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = true

	_, err := New(cfg, nil)
	assert.Error(t, err, "enabled listener needs a storage factory")

	cfg.Enabled = false
	_, err = New(cfg, nil)
	assert.NoError(t, err)

	cfg.RedactProperties = []string{"[bad"}
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestViewerLink(t *testing.T) {
	session := profile.NewSession("abc", profile.Coordinates{GroupID: "g", ArtifactID: "a", Version: "1"})

	assert.Equal(t, "http://localhost:3000/?projectId=g:a&sessionId=abc", ViewerLink("http://localhost:3000", session))
	assert.Equal(t, "https://scans.example.com/?projectId=g:a&sessionId=abc", ViewerLink("https://scans.example.com/", session))
}
