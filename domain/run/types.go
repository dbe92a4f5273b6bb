package run

import (
	"crypto/sha256"
	"fmt"

	"escapemap/domain/core"
)

// GroupStatus records how one analysis group finished.
type GroupStatus string

const (
	GroupCompleted GroupStatus = "completed"
	GroupFailed    GroupStatus = "failed"
)

// GroupResult is the per-group entry in a run manifest. A failed group keeps
// its error text so one bad group never hides the rest of the run. Seed is
// the effective embedding seed, present only for completed groups.
type GroupResult struct {
	Group     string            `json:"group"`
	Status    GroupStatus       `json:"status"`
	Seed      *int64            `json:"seed,omitempty"`
	Error     string            `json:"error,omitempty"`
	Artifacts []core.ArtifactID `json:"artifacts,omitempty"`
}

// RunFingerprint ensures deterministic replay
type RunFingerprint struct {
	TableFingerprint core.TableFingerprint `json:"table_fingerprint"`
	ConfigHash       core.ConfigHash       `json:"config_hash"`
	CodeVersion      core.CodeVersion      `json:"code_version"`
	Fingerprint      core.Hash             `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(tableFP core.TableFingerprint, configHash core.ConfigHash, codeVersion core.CodeVersion) RunFingerprint {
	return RunFingerprint{
		TableFingerprint: tableFP,
		ConfigHash:       configHash,
		CodeVersion:      codeVersion,
		Fingerprint:      computeRunFingerprint(tableFP, configHash, codeVersion),
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(tableFP core.TableFingerprint, configHash core.ConfigHash, codeVersion core.CodeVersion) core.Hash {
	data := fmt.Sprintf("table:%s|config:%s|code:%s", tableFP, configHash, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}
