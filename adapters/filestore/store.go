package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"escapemap/domain/core"
	apperrors "escapemap/internal/errors"
	"escapemap/ports"
)

// Store persists run artifacts as pretty-printed JSON files under
// root/<run-id>/, one file per artifact. It is the default store when no
// database is configured.
type Store struct {
	root string
}

// NewStore creates a filesystem result store rooted at the given directory
func NewStore(root string) ports.ResultStore {
	return &Store{root: root}
}

// SaveArtifact writes one artifact to root/<run-id>/<kind>_<id>.json
func (s *Store) SaveArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error {
	dir := filepath.Join(s.root, runID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.StoreError("failed to create run directory", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return apperrors.StoreError("failed to marshal artifact", err)
	}

	filename := fmt.Sprintf("%s_%s.json", artifact.Kind, artifact.ID)
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return apperrors.StoreError("failed to write artifact file", err)
	}

	return nil
}

// GetArtifact retrieves one artifact by run and artifact ID
func (s *Store) GetArtifact(ctx context.Context, runID core.RunID, artifactID core.ArtifactID) (*core.Artifact, error) {
	dir := filepath.Join(s.root, runID.String())
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, apperrors.StoreError("failed to read run directory", err)
	}

	suffix := fmt.Sprintf("_%s.json", artifactID)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		return s.loadArtifactFile(filepath.Join(dir, entry.Name()))
	}

	return nil, fmt.Errorf("%w: %s in run %s", core.ErrArtifactNotFound, artifactID, runID)
}

// ListArtifactsByRun returns every artifact stored for a run, oldest first
func (s *Store) ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	dir := filepath.Join(s.root, runID.String())
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, apperrors.StoreError("failed to read run directory", err)
	}

	var artifacts []core.Artifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		artifact, err := s.loadArtifactFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip corrupted files
		}
		artifacts = append(artifacts, *artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Time().Equal(artifacts[j].CreatedAt.Time()) {
			return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
		}
		return artifacts[i].ID < artifacts[j].ID
	})

	return artifacts, nil
}

// ListRuns summarizes stored runs, newest first, optionally limited.
// CreatedAt is taken from the run directory's modification time.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ports.StoredRun, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreError("failed to read store root", err)
	}

	var runs []ports.StoredRun
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count, err := s.countArtifacts(filepath.Join(s.root, entry.Name()))
		if err != nil {
			continue
		}
		runs = append(runs, ports.StoredRun{
			RunID:     core.RunID(entry.Name()),
			CreatedAt: core.NewTimestamp(info.ModTime()),
			Artifacts: count,
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *Store) countArtifacts(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			count++
		}
	}
	return count, nil
}

func (s *Store) loadArtifactFile(path string) (*core.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.StoreError("failed to read artifact file", err)
	}

	var artifact core.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, apperrors.StoreError("failed to unmarshal artifact", err)
	}

	return &artifact, nil
}
