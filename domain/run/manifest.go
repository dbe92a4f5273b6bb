package run

import (
	"escapemap/domain/core"
)

// Manifest is the audit record written once per run
// This is the "truth source" for replay - re-running with the recorded
// per-group seeds pinned in config reproduces every artifact
type Manifest struct {
	RunID            core.RunID            `json:"run_id"`
	TableFingerprint core.TableFingerprint `json:"table_fingerprint"`
	ConfigHash       core.ConfigHash       `json:"config_hash"`
	CodeVersion      core.CodeVersion      `json:"code_version"`
	Fingerprint      RunFingerprint        `json:"fingerprint"` // Determinism fingerprint
	Groups           []GroupResult         `json:"groups"`
	CreatedAt        core.Timestamp        `json:"created_at"`
}

// NewManifest creates a run manifest from the run's determinism parameters
func NewManifest(runID core.RunID, tableFP core.TableFingerprint, configHash core.ConfigHash, codeVersion core.CodeVersion) *Manifest {
	return &Manifest{
		RunID:            runID,
		TableFingerprint: tableFP,
		ConfigHash:       configHash,
		CodeVersion:      codeVersion,
		Fingerprint:      NewRunFingerprint(tableFP, configHash, codeVersion),
		Groups:           []GroupResult{},
		CreatedAt:        core.Now(),
	}
}

// RecordCompleted appends a successful group with its effective seed and
// the IDs of the artifacts it produced. Not safe for concurrent use;
// callers append in group order after their workers finish.
func (m *Manifest) RecordCompleted(group string, seed int64, artifacts []core.ArtifactID) {
	m.Groups = append(m.Groups, GroupResult{
		Group:     group,
		Status:    GroupCompleted,
		Seed:      &seed,
		Artifacts: artifacts,
	})
}

// RecordFailed appends a failed group, keeping the error text verbatim
func (m *Manifest) RecordFailed(group string, err error) {
	result := GroupResult{Group: group, Status: GroupFailed}
	if err != nil {
		result.Error = err.Error()
	}
	m.Groups = append(m.Groups, result)
}

// CompletedCount returns how many groups finished successfully
func (m *Manifest) CompletedCount() int {
	count := 0
	for _, g := range m.Groups {
		if g.Status == GroupCompleted {
			count++
		}
	}
	return count
}

// FailedCount returns how many groups failed
func (m *Manifest) FailedCount() int {
	count := 0
	for _, g := range m.Groups {
		if g.Status == GroupFailed {
			count++
		}
	}
	return count
}

// GroupFor returns the result entry for a named group
func (m *Manifest) GroupFor(name string) (GroupResult, bool) {
	for _, g := range m.Groups {
		if g.Group == name {
			return g, true
		}
	}
	return GroupResult{}, false
}

// ToCoreArtifact converts to a core artifact for storage
func (m *Manifest) ToCoreArtifact() core.Artifact {
	return core.Artifact{
		ID:        core.NewID(),
		Kind:      core.ArtifactRunManifest,
		Payload:   m,
		CreatedAt: m.CreatedAt,
	}
}

// Validate checks if the manifest carries the full reproducibility tuple
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.TableFingerprint == "" {
		return core.NewValidationError("run_manifest", "table_fingerprint cannot be empty")
	}
	if m.ConfigHash == "" {
		return core.NewValidationError("run_manifest", "config_hash cannot be empty")
	}
	if m.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}
