package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escapemap/domain/core"
	apperrors "escapemap/internal/errors"
	"escapemap/ports"

	"github.com/jmoiron/sqlx"
)

// ResultStoreImpl implements ResultStore for PostgreSQL
type ResultStoreImpl struct {
	db *sqlx.DB
}

// NewResultStore creates a new PostgreSQL result store
func NewResultStore(db *sqlx.DB) ports.ResultStore {
	return &ResultStoreImpl{db: db}
}

// SaveArtifact persists one artifact under its run
func (r *ResultStoreImpl) SaveArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error {
	payload, err := json.Marshal(artifact.Payload)
	if err != nil {
		return apperrors.StoreError("failed to encode artifact payload", err)
	}

	var group interface{}
	if artifact.Group != "" {
		group = artifact.Group
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, run_id, kind, group_name, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, artifact.ID, runID, artifact.Kind, group, payload, artifact.CreatedAt.Time())

	if err != nil {
		return apperrors.StoreError("failed to insert artifact", err)
	}
	return nil
}

// GetArtifact retrieves one artifact by run and artifact ID
func (r *ResultStoreImpl) GetArtifact(ctx context.Context, runID core.RunID, artifactID core.ArtifactID) (*core.Artifact, error) {
	var row struct {
		ID        string         `db:"id"`
		Kind      string         `db:"kind"`
		GroupName sql.NullString `db:"group_name"`
		Payload   []byte         `db:"payload"`
		CreatedAt time.Time      `db:"created_at"`
	}

	err := r.db.GetContext(ctx, &row, `
		SELECT id, kind, group_name, payload, created_at
		FROM artifacts
		WHERE run_id = $1 AND id = $2
	`, runID, artifactID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in run %s", core.ErrArtifactNotFound, artifactID, runID)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query artifact", err)
	}

	return scanArtifact(row.ID, row.Kind, row.GroupName, row.Payload, row.CreatedAt)
}

// ListArtifactsByRun returns every artifact stored for a run, oldest first
func (r *ResultStoreImpl) ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, group_name, payload, created_at
		FROM artifacts
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query artifacts", err)
	}
	defer rows.Close()

	var artifacts []core.Artifact
	for rows.Next() {
		var (
			id        string
			kind      string
			groupName sql.NullString
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &kind, &groupName, &payload, &createdAt); err != nil {
			return nil, apperrors.DatabaseError("failed to scan artifact row", err)
		}
		artifact, err := scanArtifact(id, kind, groupName, payload, createdAt)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *artifact)
	}

	return artifacts, rows.Err()
}

// ListRuns summarizes stored runs, newest first, optionally limited
func (r *ResultStoreImpl) ListRuns(ctx context.Context, limit int) ([]ports.StoredRun, error) {
	query := `
		SELECT run_id, MIN(created_at) AS created_at, COUNT(*) AS artifacts
		FROM artifacts
		GROUP BY run_id
		ORDER BY MIN(created_at) DESC
	`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query runs", err)
	}
	defer rows.Close()

	var runs []ports.StoredRun
	for rows.Next() {
		var (
			runID     string
			createdAt time.Time
			count     int
		)
		if err := rows.Scan(&runID, &createdAt, &count); err != nil {
			return nil, apperrors.DatabaseError("failed to scan run row", err)
		}
		runs = append(runs, ports.StoredRun{
			RunID:     core.RunID(runID),
			CreatedAt: core.NewTimestamp(createdAt),
			Artifacts: count,
		})
	}

	return runs, rows.Err()
}

// scanArtifact rebuilds a core artifact from its stored columns. The payload
// comes back as generic JSON, not the original Go type.
func scanArtifact(id, kind string, groupName sql.NullString, payload []byte, createdAt time.Time) (*core.Artifact, error) {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, apperrors.StoreError("failed to decode artifact payload", err)
	}

	artifact := &core.Artifact{
		ID:        core.ID(id),
		Kind:      core.ArtifactKind(kind),
		Payload:   decoded,
		CreatedAt: core.NewTimestamp(createdAt),
	}
	if groupName.Valid {
		artifact.Group = groupName.String
	}
	return artifact, nil
}
