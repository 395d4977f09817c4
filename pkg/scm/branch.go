// Package scm reads source-control metadata for build profiles.
package scm

import (
	"errors"
	"fmt"
	"path"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoRepository is returned when no git metadata is found in dir or any of its parents.
var ErrNoRepository = errors.New("no git repository found")

// Branch returns the short name of the branch checked out in the repository
// containing dir. Parent directories are searched until git metadata is found.
//
// The name is the last path segment of the ref HEAD points to, so
// "refs/heads/feature/login" yields "login". A detached HEAD yields the commit hash.
func Branch(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w in %s or its parents", ErrNoRepository, dir)
		}
		return "", fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}

	// Read HEAD without resolving it; a fresh repository has no commits yet.
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD reference: %w", err)
	}

	return shortName(head), nil
}

func shortName(ref *plumbing.Reference) string {
	if ref.Type() == plumbing.SymbolicReference {
		return path.Base(ref.Target().String())
	}
	return ref.Hash().String()
}
