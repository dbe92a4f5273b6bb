package embed

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

// Point is one condition's 2D coordinate in the embedded map.
type Point struct {
	Condition string  `json:"condition"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Result is a finished embedding: coordinates plus the raw stress of the
// best initialization and how many majorization steps it took.
type Result struct {
	Points     []Point `json:"points"`
	Stress     float64 `json:"stress"`
	Iterations int     `json:"iterations"`
	Seed       int64   `json:"seed"`
}

// Scaler embeds a precomputed dissimilarity matrix into 2D by SMACOF stress
// majorization. Multiple random initializations guard against poor local
// minima; the best (lowest-stress) configuration wins.
type Scaler struct {
	inits   int
	maxIter int
	eps     float64
}

const embedDims = 2

// NewScaler returns a scaler with defaults suited to tens of conditions.
func NewScaler() *Scaler {
	return &Scaler{inits: 4, maxIter: 300, eps: 1e-9}
}

// NewScalerWith overrides the initialization count, iteration cap, and
// relative stress-improvement threshold.
func NewScalerWith(inits, maxIter int, eps float64) *Scaler {
	return &Scaler{inits: inits, maxIter: maxIter, eps: eps}
}

// Embed runs the scaler on a dissimilarity matrix. A nil seed draws one from
// the clock; a fixed seed makes the embedding fully reproducible.
func (s *Scaler) Embed(dis escape.DissimilarityMatrix, seed *int64) (*Result, error) {
	n := dis.Size()
	if n == 0 {
		return nil, core.NewValidationError("dissimilarity matrix", "cannot embed an empty matrix")
	}

	effectiveSeed := time.Now().UnixNano()
	if seed != nil {
		effectiveSeed = *seed
	}

	// One and two conditions embed exactly; no iteration needed.
	if n == 1 {
		return &Result{
			Points: []Point{{Condition: dis.Conditions[0]}},
			Seed:   effectiveSeed,
		}, nil
	}
	if n == 2 {
		half := dis.Cells[0][1] / 2
		return &Result{
			Points: []Point{
				{Condition: dis.Conditions[0], X: -half},
				{Condition: dis.Conditions[1], X: half},
			},
			Seed: effectiveSeed,
		}, nil
	}

	rng := rand.New(rand.NewSource(effectiveSeed))

	var best *mat.Dense
	bestStress := math.Inf(1)
	bestIters := 0
	for init := 0; init < s.inits; init++ {
		coords, stress, iters := s.run(dis.Cells, n, rng)
		if stress < bestStress {
			best, bestStress, bestIters = coords, stress, iters
		}
	}

	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{
			Condition: dis.Conditions[i],
			X:         best.At(i, 0),
			Y:         best.At(i, 1),
		}
	}
	return &Result{Points: points, Stress: bestStress, Iterations: bestIters, Seed: effectiveSeed}, nil
}

// run performs one SMACOF pass from a random configuration.
func (s *Scaler) run(delta [][]float64, n int, rng *rand.Rand) (*mat.Dense, float64, int) {
	coords := mat.NewDense(n, embedDims, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < embedDims; d++ {
			coords.Set(i, d, rng.Float64())
		}
	}

	dist := pairwiseDistances(coords, n)
	stress := rawStress(delta, dist, n)

	b := mat.NewDense(n, n, nil)
	next := mat.NewDense(n, embedDims, nil)
	iters := 0
	for iter := 0; iter < s.maxIter; iter++ {
		iters = iter + 1

		// Guttman transform: next = (1/n) * B(coords) * coords.
		for i := 0; i < n; i++ {
			rowSum := 0.0
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				v := 0.0
				if dist[i][j] > 1e-12 {
					v = -delta[i][j] / dist[i][j]
				}
				b.Set(i, j, v)
				rowSum += v
			}
			b.Set(i, i, -rowSum)
		}
		next.Mul(b, coords)
		next.Scale(1/float64(n), next)
		coords.Copy(next)

		dist = pairwiseDistances(coords, n)
		newStress := rawStress(delta, dist, n)
		if stress-newStress < s.eps*stress {
			stress = newStress
			break
		}
		stress = newStress
	}
	return coords, stress, iters
}

func pairwiseDistances(coords *mat.Dense, n int) [][]float64 {
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := coords.At(i, 0) - coords.At(j, 0)
			dy := coords.At(i, 1) - coords.At(j, 1)
			d := math.Hypot(dx, dy)
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

// rawStress is the sum of squared residuals between target and embedded
// distances over unordered pairs.
func rawStress(delta, dist [][]float64, n int) float64 {
	stress := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := delta[i][j] - dist[i][j]
			stress += r * r
		}
	}
	return stress
}
