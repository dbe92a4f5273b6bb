package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	TableFingerprint Hash
	ConfigHash       Hash
	CodeVersion      Hash
)

// Constructors
func NewTableFingerprint(data []byte) TableFingerprint { return TableFingerprint(NewHash(data)) }
func NewConfigHash(data []byte) ConfigHash             { return ConfigHash(NewHash(data)) }
func NewCodeVersion(data []byte) CodeVersion           { return CodeVersion(NewHash(data)) }

// String conversions
func (h TableFingerprint) String() string { return Hash(h).String() }
func (h ConfigHash) String() string       { return Hash(h).String() }
func (h CodeVersion) String() string      { return Hash(h).String() }

// ComputeTableFingerprint hashes every (condition, site, value) triple in a
// canonical order so re-reads of identical data fingerprint identically.
func ComputeTableFingerprint(values map[string]map[int]float64) TableFingerprint {
	conditions := make([]string, 0, len(values))
	for c := range values {
		conditions = append(conditions, c)
	}
	sort.Strings(conditions)

	var data strings.Builder
	for _, c := range conditions {
		sites := make([]int, 0, len(values[c]))
		for s := range values[c] {
			sites = append(sites, s)
		}
		sort.Ints(sites)
		for _, s := range sites {
			data.WriteString(c)
			data.WriteString(fmt.Sprintf("\x1f%d\x1f%g\n", s, values[c][s]))
		}
	}

	return NewTableFingerprint([]byte(data.String()))
}

// ComputeConfigHash hashes a settings map with sorted keys.
func ComputeConfigHash(settings map[string]interface{}) ConfigHash {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("%v", settings[key]))
	}

	return NewConfigHash([]byte(data.String()))
}
