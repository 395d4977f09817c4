// Package storage defines how session profiles are persisted.
//
// A Storage is scoped to one build session. The profiler opens it when the
// session starts, asks for checkpoints while the build runs and closes it once
// the final session status is known. Backends live in sub-packages and are
// selected by pkg/storage/backends.
package storage

import (
	"context"
	"errors"

	"github.com/entrhq/buildscan/pkg/profile"
)

var (
	// ErrNotOpen is returned when a checkpoint is requested before Open.
	ErrNotOpen = errors.New("storage is not open")

	// ErrClosed is returned when a storage is used after Close.
	ErrClosed = errors.New("storage is closed")
)

// Storage persists the profile of one build session.
type Storage interface {
	// Open establishes the connection for the session. Called once at session start.
	Open(ctx context.Context) error

	// Checkpoint durably persists the current state of the session profile.
	// It may be called any number of times between Open and Close.
	Checkpoint(ctx context.Context) error

	// Close persists the final state and releases all resources.
	Close(ctx context.Context) error
}

// Factory creates the storage for a session. The storage keeps a reference to
// the session and persists whatever state it holds when called.
type Factory func(session *profile.Session) (Storage, error)
