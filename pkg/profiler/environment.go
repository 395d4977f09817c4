package profiler

import (
	"os"
	"os/user"

	"github.com/entrhq/buildscan/pkg/scm"
)

// Environment supplies the host facts recorded on a session.
type Environment interface {
	Hostname() (string, error)
	Username() (string, error)

	// Branch returns the source-control branch of the checkout containing dir.
	Branch(dir string) (string, error)
}

// SystemEnvironment reads host facts from the operating system and git.
type SystemEnvironment struct{}

func (SystemEnvironment) Hostname() (string, error) {
	return os.Hostname()
}

func (SystemEnvironment) Username() (string, error) {
	u, err := user.Current()
	if err != nil {
		if name := os.Getenv("USER"); name != "" {
			return name, nil
		}
		return "", err
	}
	return u.Username, nil
}

func (SystemEnvironment) Branch(dir string) (string, error) {
	return scm.Branch(dir)
}
