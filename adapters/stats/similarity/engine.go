package similarity

import (
	"fmt"
	"math"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

// Engine computes cosine-like similarity between escape profiles. The
// exponent emphasizes strong-escape sites before normalization; 1 leaves the
// raw values alone. An engine is stateless beyond its exponent and safe to
// reuse across groups.
type Engine struct {
	exponent float64
}

// NewEngine creates an engine with the given site-emphasis exponent.
// Exponents below 1 would invert the emphasis and are rejected.
func NewEngine(exponent float64) (*Engine, error) {
	if math.IsNaN(exponent) || exponent < 1 {
		return nil, fmt.Errorf("%w: exponent %g (must be >= 1)", core.ErrExponentOutOfRange, exponent)
	}
	return &Engine{exponent: exponent}, nil
}

// DefaultEngine returns an engine with exponent 1.
func DefaultEngine() *Engine {
	return &Engine{exponent: 1}
}

// Exponent returns the configured site-emphasis exponent.
func (e *Engine) Exponent() float64 {
	return e.exponent
}

// Pairwise computes the similarity between two conditions: each profile is
// assembled over the union of the pair's observed sites (absent sites fill
// with zero), raised elementwise to the exponent, L2-normalized, and the
// result is the dot product. With non-negative metrics the result lies in
// [0, 1].
func (e *Engine) Pairwise(table *escape.Table, c1, c2 string) (float64, error) {
	for _, c := range []string{c1, c2} {
		if !table.HasCondition(c) {
			return 0, core.NewUnknownConditionError(c)
		}
	}
	return e.pairwise(table, c1, c2)
}

// Matrix computes the full similarity matrix over a condition set, in the
// order given. Every ordered pair goes through the same pairwise path,
// self-pairs included, so the diagonal is 1 and symmetry holds only because
// the arithmetic says so.
func (e *Engine) Matrix(table *escape.Table, conditions []string) (escape.SimilarityMatrix, error) {
	if err := validateConditionSet(table, conditions); err != nil {
		return escape.SimilarityMatrix{}, err
	}

	m := escape.NewMatrix(conditions)
	for i, a := range conditions {
		for j, b := range conditions {
			s, err := e.pairwise(table, a, b)
			if err != nil {
				return escape.SimilarityMatrix{}, fmt.Errorf("pair (%s, %s): %w", a, b, err)
			}
			m.Cells[i][j] = s
		}
	}
	return escape.SimilarityMatrix{Matrix: m}, nil
}

// pairwise assumes both conditions exist in the table.
func (e *Engine) pairwise(table *escape.Table, c1, c2 string) (float64, error) {
	sites := table.SiteUnion(c1, c2)

	v1, err := e.preparedProfile(table, c1, sites)
	if err != nil {
		return 0, err
	}
	v2, err := e.preparedProfile(table, c2, sites)
	if err != nil {
		return 0, err
	}

	dot := 0.0
	for i := range v1 {
		dot += v1[i] * v2[i]
	}
	return dot, nil
}

// preparedProfile assembles, exponentiates, and normalizes one dense profile.
// The computation asserts finiteness up front: only structural absence fills
// with zero, a NaN that reached this point is a hard stop.
func (e *Engine) preparedProfile(table *escape.Table, condition string, sites []int) ([]float64, error) {
	vec := table.Profile(condition, sites)

	sumSq := 0.0
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, core.NewNonFiniteMetricError(condition, sites[i])
		}
		p := math.Pow(v, e.exponent)
		vec[i] = p
		sumSq += p * p
	}

	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil, core.NewZeroNormError(condition)
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// validateConditionSet rejects requests the table cannot honor: an empty
// set, a repeated name, or a condition with no observations. A missing
// condition never degrades to an all-zero row.
func validateConditionSet(table *escape.Table, conditions []string) error {
	if len(conditions) == 0 {
		return core.ErrEmptyConditionSet
	}
	seen := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		if seen[c] {
			return core.NewDuplicateConditionError(c)
		}
		seen[c] = true
		if !table.HasCondition(c) {
			return core.NewUnknownConditionError(c)
		}
	}
	return nil
}
