package storage

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/entrhq/buildscan/pkg/profile"
)

// DocumentVersion is the version of the JSON document layout.
const DocumentVersion = "1.0"

// Document is the JSON representation of a persisted session profile.
type Document struct {
	Version     string           `json:"version"`
	WrittenAt   time.Time        `json:"written_at"`
	Checkpoints int              `json:"checkpoints"`
	Final       bool             `json:"final"`
	Session     *profile.Session `json:"session"`
}

// MarshalDocument encodes a session profile as an indented JSON document.
func MarshalDocument(session *profile.Session, checkpoints int, final bool) ([]byte, error) {
	doc := Document{
		Version:     DocumentVersion,
		WrittenAt:   time.Now().UTC(),
		Checkpoints: checkpoints,
		Final:       final,
		Session:     session,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument decodes a document written by MarshalDocument.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session document: %w", err)
	}
	if doc.Session == nil {
		return nil, fmt.Errorf("session document has no session")
	}
	return &doc, nil
}

// DocumentKey returns the slash-separated relative location of a session's
// document: "<groupId>/<artifactId>/<sessionId>.json".
func DocumentKey(session *profile.Session) string {
	return path.Join(
		keySegment(session.Project.GroupID),
		keySegment(session.Project.ArtifactID),
		keySegment(session.ID)+".json",
	)
}

func keySegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
