package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID      ID
	GroupID    ID
	ArtifactID ID
)

// String conversions for domain IDs
func (id RunID) String() string      { return ID(id).String() }
func (id GroupID) String() string    { return ID(id).String() }
func (id ArtifactID) String() string { return ID(id).String() }

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParseGroupID parses a string into GroupID
func ParseGroupID(s string) (GroupID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("group ID cannot be empty")
	}
	return GroupID(s), nil
}

// ParseArtifactID parses a string into ArtifactID
func ParseArtifactID(s string) (ArtifactID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("artifact ID cannot be empty")
	}
	return ArtifactID(s), nil
}

// Artifact represents any output of the system
type Artifact struct {
	ID        ID           `json:"id"`
	Kind      ArtifactKind `json:"kind"`
	Group     string       `json:"group,omitempty"`
	Payload   interface{}  `json:"payload"`
	CreatedAt Timestamp    `json:"created_at"`
}

// ArtifactKind defines types of artifacts
type ArtifactKind string

const (
	ArtifactSimilarityMatrix    ArtifactKind = "similarity_matrix"
	ArtifactDissimilarityMatrix ArtifactKind = "dissimilarity_matrix"
	// ArtifactEmbedding is the 2D coordinate set produced by multidimensional scaling.
	ArtifactEmbedding ArtifactKind = "embedding"
	// ArtifactFrequencyComparison correlates one escape profile against variant mutation frequencies.
	ArtifactFrequencyComparison ArtifactKind = "frequency_comparison"
	// ArtifactEpitopeOverlap quantifies how much of a profile falls inside a named site set.
	ArtifactEpitopeOverlap ArtifactKind = "epitope_overlap"
	// ArtifactRunManifest captures audit metadata for a run (seed, fingerprints, group status).
	ArtifactRunManifest ArtifactKind = "run_manifest"
	ArtifactGroupReport ArtifactKind = "group_report"
)
