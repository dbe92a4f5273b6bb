package escape

import "math"

// Matrix is a square table of pairwise values indexed by condition
// identifier on both axes, in the order the conditions were requested.
// Matrices are computed fresh per invocation and never mutated afterwards.
type Matrix struct {
	Conditions []string    `json:"conditions"`
	Cells      [][]float64 `json:"cells"`
}

// NewMatrix allocates a zeroed k-by-k matrix over the given conditions.
func NewMatrix(conditions []string) Matrix {
	k := len(conditions)
	cells := make([][]float64, k)
	for i := range cells {
		cells[i] = make([]float64, k)
	}
	names := make([]string, k)
	copy(names, conditions)
	return Matrix{Conditions: names, Cells: cells}
}

// Size returns the number of conditions on each axis.
func (m Matrix) Size() int {
	return len(m.Conditions)
}

// At looks a cell up by condition names.
func (m Matrix) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for idx, name := range m.Conditions {
		if name == a {
			i = idx
		}
		if name == b {
			j = idx
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Cells[i][j], true
}

// IsSymmetric reports whether every cell matches its transpose within tol.
func (m Matrix) IsSymmetric(tol float64) bool {
	for i := range m.Cells {
		for j := i + 1; j < len(m.Cells); j++ {
			if math.Abs(m.Cells[i][j]-m.Cells[j][i]) > tol {
				return false
			}
		}
	}
	return true
}

// Relabeled returns a copy with condition names remapped for display.
// Names missing from the map pass through unchanged.
func (m Matrix) Relabeled(rename map[string]string) Matrix {
	out := NewMatrix(m.Conditions)
	for i, name := range out.Conditions {
		if display, ok := rename[name]; ok {
			out.Conditions[i] = display
		}
	}
	for i := range m.Cells {
		copy(out.Cells[i], m.Cells[i])
	}
	return out
}

// SimilarityMatrix holds cosine-like similarities. With non-negative inputs
// every cell lies in [0, 1] and the diagonal is 1 up to floating point.
type SimilarityMatrix struct {
	Matrix
}

// DissimilarityMatrix is the distance input handed to multidimensional
// scaling, derived cell-by-cell from a similarity matrix.
type DissimilarityMatrix struct {
	Matrix
	Method DissimilarityMethod `json:"method"`
}
