package escape

import (
	"math"
	"sort"

	"escapemap/domain/core"
)

// Table holds one aggregated escape value per (condition, site). It is the
// immutable input to every downstream computation; build it once per run and
// never mutate it.
type Table struct {
	values     map[string]map[int]float64
	conditions []string // first-appearance order
}

// NewTable builds a table from aggregated observations.
//
// Validation happens here so later stages can assume a clean table:
// a negative metric violates the non-negativity contract (invalid input),
// a NaN or infinite metric is a domain error, and two observations for the
// same (condition, site) must carry the same value. Exact-value duplicates
// collapse silently.
func NewTable(observations []Observation) (*Table, error) {
	t := &Table{values: make(map[string]map[int]float64)}
	for _, obs := range observations {
		if math.IsNaN(obs.Metric) || math.IsInf(obs.Metric, 0) {
			return nil, core.NewNonFiniteMetricError(obs.Condition, obs.Site)
		}
		if obs.Metric < 0 {
			return nil, core.NewValidationError("metric",
				core.ErrNegativeMetric.Error()+" for ("+obs.Condition+")")
		}
		sites, ok := t.values[obs.Condition]
		if !ok {
			sites = make(map[int]float64)
			t.values[obs.Condition] = sites
			t.conditions = append(t.conditions, obs.Condition)
		}
		if prev, seen := sites[obs.Site]; seen {
			if prev != obs.Metric {
				return nil, core.NewConflictingRecordError(obs.Condition, obs.Site, prev, obs.Metric)
			}
			continue
		}
		sites[obs.Site] = obs.Metric
	}
	return t, nil
}

// Conditions returns the condition identifiers in first-appearance order.
func (t *Table) Conditions() []string {
	out := make([]string, len(t.conditions))
	copy(out, t.conditions)
	return out
}

// HasCondition reports whether a condition has any observations.
func (t *Table) HasCondition(condition string) bool {
	_, ok := t.values[condition]
	return ok
}

// Value returns the metric for (condition, site) and whether it was observed.
func (t *Table) Value(condition string, site int) (float64, bool) {
	v, ok := t.values[condition][site]
	return v, ok
}

// SiteCount returns the number of observed (condition, site) pairs for a condition.
func (t *Table) SiteCount(condition string) int {
	return len(t.values[condition])
}

// SiteUnion returns the sorted union of sites observed for the given
// conditions. Callers must have verified the conditions exist; unknown names
// contribute nothing. With no arguments it spans the whole table.
func (t *Table) SiteUnion(conditions ...string) []int {
	seen := make(map[int]bool)
	if len(conditions) == 0 {
		conditions = t.conditions
	}
	for _, c := range conditions {
		for site := range t.values[c] {
			seen[site] = true
		}
	}
	sites := make([]int, 0, len(seen))
	for site := range seen {
		sites = append(sites, site)
	}
	sort.Ints(sites)
	return sites
}

// Profile assembles the dense vector for one condition over an explicit site
// universe. Sites the condition was never observed at fill with zero: absence
// means no measured escape, not an unknown.
func (t *Table) Profile(condition string, sites []int) []float64 {
	vec := make([]float64, len(sites))
	for i, site := range sites {
		vec[i] = t.values[condition][site]
	}
	return vec
}

// Fingerprint hashes the full table content in canonical order.
func (t *Table) Fingerprint() core.TableFingerprint {
	return core.ComputeTableFingerprint(t.values)
}
