package profile

import "fmt"

// Coordinates identify an artifact by its group/artifact/version triple.
type Coordinates struct {
	GroupID    string `json:"group_id"`
	ArtifactID string `json:"artifact_id"`
	Version    string `json:"version"`
}

// ID returns the version-independent identity "groupId:artifactId".
func (c Coordinates) ID() string {
	return fmt.Sprintf("%s:%s", c.GroupID, c.ArtifactID)
}

// String returns "groupId:artifactId:version".
func (c Coordinates) String() string {
	return fmt.Sprintf("%s:%s:%s", c.GroupID, c.ArtifactID, c.Version)
}
