// Package sqlite provides a SQLite-backed session profile store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/storage"
	"github.com/entrhq/buildscan/pkg/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists one session profile into a SQLite database shared by all sessions.
type Store struct {
	path        string
	session     *profile.Session
	sqlDB       *sql.DB
	mu          sync.Mutex
	checkpoints int
	closed      bool
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// NewStore creates a store writing session into the database at path.
func NewStore(path string, session *profile.Session) *Store {
	return &Store{
		path:    path,
		session: session,
	}
}

// Factory returns a storage.Factory creating stores for the database at path.
func Factory(path string) storage.Factory {
	return func(session *profile.Session) (storage.Storage, error) {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("storage path is required")
		}
		return NewStore(path, session), nil
	}
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

// Open connects to the database, applies migrations and writes the initial session rows.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if s.sqlDB == nil {
		sqlDB, err := openDB(ctx, s.path)
		if err != nil {
			return err
		}
		s.sqlDB = sqlDB
	}
	return s.save(ctx, false)
}

// Checkpoint rewrites the session rows in one transaction.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if s.sqlDB == nil {
		return storage.ErrNotOpen
	}

	s.checkpoints++
	return s.save(ctx, false)
}

// Close writes the final session rows and closes the database handle.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if s.sqlDB == nil {
		return storage.ErrNotOpen
	}

	saveErr := s.save(ctx, true)
	closeErr := s.sqlDB.Close()
	s.sqlDB = nil
	s.closed = true
	if saveErr != nil {
		return saveErr
	}
	if closeErr != nil {
		return fmt.Errorf("close sqlite db: %w", closeErr)
	}
	return nil
}

func (s *Store) save(ctx context.Context, final bool) error {
	session := s.session
	goals, err := json.Marshal(session.Goals)
	if err != nil {
		return fmt.Errorf("marshal goals: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (
		   id, project_id, group_id, artifact_id, version,
		   hostname, username, command, goals, branch,
		   status, start_time, end_time, checkpoints, final, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   hostname = excluded.hostname,
		   username = excluded.username,
		   command = excluded.command,
		   goals = excluded.goals,
		   branch = excluded.branch,
		   status = excluded.status,
		   start_time = excluded.start_time,
		   end_time = excluded.end_time,
		   checkpoints = excluded.checkpoints,
		   final = excluded.final,
		   updated_at = excluded.updated_at`,
		session.ID,
		session.Project.ID(),
		session.Project.GroupID,
		session.Project.ArtifactID,
		session.Project.Version,
		session.Hostname,
		session.Username,
		session.Command,
		string(goals),
		session.Branch,
		string(session.Status),
		toMillis(session.StartTime),
		toMillis(session.EndTime),
		s.checkpoints,
		final,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mojos WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("clear mojos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("clear projects: %w", err)
	}

	for i, p := range session.Projects {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (
			   session_id, position, group_id, artifact_id, version, status, start_time, end_time
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, i,
			p.Coordinates.GroupID, p.Coordinates.ArtifactID, p.Coordinates.Version,
			string(p.Status), toMillis(p.StartTime), toMillis(p.EndTime),
		)
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.Coordinates, err)
		}

		for j, m := range p.Mojos {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO mojos (
				   session_id, project_position, position,
				   plugin_group_id, plugin_artifact_id, plugin_version,
				   execution_id, goal, status, thread, start_time, end_time
				 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				session.ID, i, j,
				m.Plugin.GroupID, m.Plugin.ArtifactID, m.Plugin.Version,
				m.ExecutionID, m.Goal, string(m.Status), m.Thread,
				toMillis(m.StartTime), toMillis(m.EndTime),
			)
			if err != nil {
				return fmt.Errorf("insert mojo %s: %w", m.Key(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// ErrSessionNotFound is returned by ReadSession when no session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession loads a stored session profile from the database at path.
func ReadSession(ctx context.Context, path, id string) (*profile.Session, error) {
	sqlDB, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	var (
		session    profile.Session
		goals      string
		status     string
		start, end int64
	)
	err = sqlDB.QueryRowContext(ctx,
		`SELECT id, group_id, artifact_id, version, hostname, username, command, goals, branch,
		        status, start_time, end_time
		   FROM sessions WHERE id = ?`, id,
	).Scan(
		&session.ID,
		&session.Project.GroupID, &session.Project.ArtifactID, &session.Project.Version,
		&session.Hostname, &session.Username, &session.Command, &goals, &session.Branch,
		&status, &start, &end,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &session.Goals); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	session.Status = profile.Status(status)
	session.StartTime, session.EndTime = fromMillis(start), fromMillis(end)

	projects, err := readProjects(ctx, sqlDB, id)
	if err != nil {
		return nil, err
	}
	session.Projects = projects

	if err := readMojos(ctx, sqlDB, id, projects); err != nil {
		return nil, err
	}

	return &session, nil
}

func readProjects(ctx context.Context, sqlDB *sql.DB, sessionID string) ([]*profile.Project, error) {
	rows, err := sqlDB.QueryContext(ctx,
		`SELECT group_id, artifact_id, version, status, start_time, end_time
		   FROM projects WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []*profile.Project{}
	for rows.Next() {
		var (
			coords     profile.Coordinates
			status     string
			start, end int64
		)
		if err := rows.Scan(&coords.GroupID, &coords.ArtifactID, &coords.Version, &status, &start, &end); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p := profile.NewProject(coords, profile.Status(status))
		p.StartTime, p.EndTime = fromMillis(start), fromMillis(end)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func readMojos(ctx context.Context, sqlDB *sql.DB, sessionID string, projects []*profile.Project) error {
	rows, err := sqlDB.QueryContext(ctx,
		`SELECT project_position, plugin_group_id, plugin_artifact_id, plugin_version,
		        execution_id, goal, status, thread, start_time, end_time
		   FROM mojos WHERE session_id = ? ORDER BY project_position, position`, sessionID)
	if err != nil {
		return fmt.Errorf("query mojos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			position   int
			plugin     profile.Coordinates
			execID     string
			goal       string
			status     string
			thread     int
			start, end int64
		)
		if err := rows.Scan(&position, &plugin.GroupID, &plugin.ArtifactID, &plugin.Version,
			&execID, &goal, &status, &thread, &start, &end); err != nil {
			return fmt.Errorf("scan mojo: %w", err)
		}
		if position < 0 || position >= len(projects) {
			return fmt.Errorf("mojo references unknown project position %d", position)
		}
		m := profile.NewMojo(plugin, execID, goal, thread)
		m.Status = profile.Status(status)
		m.StartTime, m.EndTime = fromMillis(start), fromMillis(end)
		projects[position].AddMojo(m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate mojos: %w", err)
	}
	return nil
}
