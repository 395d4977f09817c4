// Package file stores session profiles as JSON documents on the local filesystem.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/storage"
)

// Store writes one session profile to <dir>/<groupId>/<artifactId>/<sessionId>.json.
// Every write replaces the document atomically.
type Store struct {
	path        string
	session     *profile.Session
	mu          sync.Mutex
	opened      bool
	closed      bool
	checkpoints int
}

// NewStore creates a file store for session rooted at dir.
func NewStore(dir string, session *profile.Session) *Store {
	return &Store{
		path:    filepath.Join(dir, filepath.FromSlash(storage.DocumentKey(session))),
		session: session,
	}
}

// Factory returns a storage.Factory creating file stores rooted at dir.
func Factory(dir string) storage.Factory {
	return func(session *profile.Session) (storage.Storage, error) {
		return NewStore(dir, session), nil
	}
}

// Open creates the document directory and writes the initial document.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	if err := s.write(ctx, false); err != nil {
		return err
	}
	s.opened = true
	return nil
}

// Checkpoint rewrites the document with the current session state.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if !s.opened {
		return storage.ErrNotOpen
	}

	s.checkpoints++
	return s.write(ctx, false)
}

// Close writes the final document. Closing twice is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if !s.opened {
		return storage.ErrNotOpen
	}

	if err := s.write(ctx, true); err != nil {
		return err
	}
	s.closed = true
	return nil
}

// Path returns the location of the session document.
func (s *Store) Path() string {
	return s.path
}

// write replaces the document via a temp file and rename.
func (s *Store) write(ctx context.Context, final bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := storage.MarshalDocument(s.session, s.checkpoints, final)
	if err != nil {
		return err
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp profile file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp profile file: %w", err)
	}

	return nil
}

// Load reads a session document written by a Store.
func Load(path string) (*storage.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return storage.UnmarshalDocument(data)
}
