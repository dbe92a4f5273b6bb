package similarity

import (
	"fmt"
	"math"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

// Transform converts one similarity value to a dissimilarity.
//
// one_minus is defined for any real input; a negative result is possible
// only through floating-point drift above 1. minus_log requires a strictly
// positive similarity.
func Transform(s float64, method escape.DissimilarityMethod) (float64, error) {
	switch method {
	case escape.MethodOneMinus:
		return 1 - s, nil
	case escape.MethodMinusLog:
		if s <= 0 {
			return 0, fmt.Errorf("%w: similarity %g", core.ErrLogOfNonPositive, s)
		}
		return -math.Log(s), nil
	default:
		return 0, fmt.Errorf("%w: %q", core.ErrUnknownMethod, method)
	}
}

// Derive maps a similarity matrix cell-by-cell into the dissimilarity matrix
// handed to multidimensional scaling. The method is checked before any cell
// is touched; a domain failure identifies the offending condition pair.
func Derive(sim escape.SimilarityMatrix, method escape.DissimilarityMethod) (escape.DissimilarityMatrix, error) {
	if _, err := escape.ParseDissimilarityMethod(string(method)); err != nil {
		return escape.DissimilarityMatrix{}, err
	}

	m := escape.NewMatrix(sim.Conditions)
	for i := range sim.Cells {
		for j := range sim.Cells[i] {
			d, err := Transform(sim.Cells[i][j], method)
			if err != nil {
				return escape.DissimilarityMatrix{}, core.NewLogDomainError(
					sim.Conditions[i], sim.Conditions[j], sim.Cells[i][j])
			}
			m.Cells[i][j] = d
		}
	}
	return escape.DissimilarityMatrix{Matrix: m, Method: method}, nil
}
