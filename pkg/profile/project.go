package profile

import (
	"errors"
	"fmt"
)

// ErrMojoNotFound is returned when no goal execution matches a key.
var ErrMojoNotFound = errors.New("mojo execution not found")

// Project records one module of the build.
type Project struct {
	Coordinates Coordinates `json:"coordinates"`
	Status      Status      `json:"status"`
	Mojos       []*Mojo     `json:"mojos"`

	Timing
}

// NewProject creates a project record with the given status.
func NewProject(coordinates Coordinates, status Status) *Project {
	return &Project{
		Coordinates: coordinates,
		Status:      status,
		Mojos:       []*Mojo{},
	}
}

// AddMojo appends a goal execution. Insertion order is execution order.
func (p *Project) AddMojo(m *Mojo) {
	p.Mojos = append(p.Mojos, m)
}

// Mojo returns the goal execution matching key. When the key matches several
// executions the most recent one that has not finished is preferred.
func (p *Project) Mojo(key MojoKey) (*Mojo, error) {
	var latest *Mojo
	for i := len(p.Mojos) - 1; i >= 0; i-- {
		m := p.Mojos[i]
		if m.Key() != key {
			continue
		}
		if !m.Status.IsTerminal() {
			return m, nil
		}
		if latest == nil {
			latest = m
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrMojoNotFound, key, p.Coordinates)
	}
	return latest, nil
}

// SetStatus moves the project to next, rejecting backward moves.
func (p *Project) SetStatus(next Status) error {
	return transition(&p.Status, next)
}
