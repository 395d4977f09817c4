package profile

import (
	"errors"
	"fmt"
	"sort"
)

// ErrProjectNotFound is returned when a project was not registered with the session.
var ErrProjectNotFound = errors.New("project not found")

// Session is the root of a build profile: one build invocation.
type Session struct {
	ID       string      `json:"id"`
	Project  Coordinates `json:"project"`
	Hostname string      `json:"hostname,omitempty"`
	Username string      `json:"username,omitempty"`
	Command  string      `json:"command"`
	Goals    []string    `json:"goals"`
	Branch   string      `json:"branch,omitempty"`
	Status   Status      `json:"status"`

	Timing

	// Projects are kept in dependency-sorted build order.
	Projects []*Project `json:"projects"`

	index map[Coordinates]*Project
}

// MojoRef pairs a goal execution with the project it ran in.
type MojoRef struct {
	Project *Project
	Mojo    *Mojo
}

// NewSession creates a PENDING session for the given top-level project.
func NewSession(id string, project Coordinates) *Session {
	return &Session{
		ID:       id,
		Project:  project,
		Goals:    []string{},
		Status:   StatusPending,
		Projects: []*Project{},
		index:    make(map[Coordinates]*Project),
	}
}

// AddProject registers a project. A project already registered under the same
// coordinates is kept and p is ignored.
func (s *Session) AddProject(p *Project) {
	s.ensureIndex()
	if _, exists := s.index[p.Coordinates]; exists {
		return
	}
	s.index[p.Coordinates] = p
	s.Projects = append(s.Projects, p)
}

// LookupProject returns the registered project with the given coordinates.
func (s *Session) LookupProject(coordinates Coordinates) (*Project, error) {
	s.ensureIndex()
	p, ok := s.index[coordinates]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, coordinates)
	}
	return p, nil
}

// SetStatus moves the session to next, rejecting backward moves.
func (s *Session) SetStatus(next Status) error {
	return transition(&s.Status, next)
}

// Counts returns the number of projects in each status.
func (s *Session) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, p := range s.Projects {
		counts[p.Status]++
	}
	return counts
}

// Mojos returns every goal execution of the session in build order.
func (s *Session) Mojos() []MojoRef {
	var refs []MojoRef
	for _, p := range s.Projects {
		for _, m := range p.Mojos {
			refs = append(refs, MojoRef{Project: p, Mojo: m})
		}
	}
	return refs
}

// SlowestMojos returns up to n goal executions ordered by descending duration.
func (s *Session) SlowestMojos(n int) []MojoRef {
	refs := s.Mojos()
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Mojo.Duration() > refs[j].Mojo.Duration()
	})
	if n >= 0 && len(refs) > n {
		refs = refs[:n]
	}
	return refs
}

// ensureIndex rebuilds the lookup index, e.g. after the session was decoded from JSON.
func (s *Session) ensureIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[Coordinates]*Project, len(s.Projects))
	for _, p := range s.Projects {
		if _, exists := s.index[p.Coordinates]; !exists {
			s.index[p.Coordinates] = p
		}
	}
}
