package profile

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a session, project or goal execution.
type Status string

const (
	StatusPending   Status = "PENDING"   // StatusPending indicates work is registered but has not run.
	StatusStarted   Status = "STARTED"   // StatusStarted indicates work is running.
	StatusSucceeded Status = "SUCCEEDED" // StatusSucceeded indicates work completed successfully.
	StatusFailed    Status = "FAILED"    // StatusFailed indicates work completed with a failure.
)

// ErrIllegalTransition is returned when a status change would move an entity
// backwards or out of a terminal status.
var ErrIllegalTransition = errors.New("illegal status transition")

// ParseStatus converts a status name into a Status. Matching is case-insensitive.
func ParseStatus(name string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(name))); s {
	case StatusPending, StatusStarted, StatusSucceeded, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", name)
	}
}

// IsTerminal returns true for SUCCEEDED and FAILED.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether an entity in status s may move to next.
// Statuses only move forward: PENDING -> STARTED -> SUCCEEDED|FAILED, and
// STARTED may be skipped. Terminal statuses never change.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusPending || next == StatusStarted || next.IsTerminal()
	case StatusStarted:
		return next == StatusStarted || next.IsTerminal()
	default:
		return false
	}
}

func transition(current *Status, next Status) error {
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, *current, next)
	}
	*current = next
	return nil
}
