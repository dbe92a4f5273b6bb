package ports

import (
	"context"

	"escapemap/domain/core"
)

// ResultStore persists run artifacts for later inspection. Stores never
// feed results back into analysis: every run recomputes its matrices from
// the source table, so a store is write-mostly and lossy reads are safe.
type ResultStore interface {
	SaveArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error
	GetArtifact(ctx context.Context, runID core.RunID, artifactID core.ArtifactID) (*core.Artifact, error)
	ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error)
	ListRuns(ctx context.Context, limit int) ([]StoredRun, error)
}

// StoredRun summarizes one persisted run for listings, newest first.
type StoredRun struct {
	RunID     core.RunID     `json:"run_id"`
	CreatedAt core.Timestamp `json:"created_at"`
	Artifacts int            `json:"artifacts"`
}
