package frequency

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

// Comparison correlates one condition's escape profile against circulating
// mutation frequencies over the sites the frequency table covers. Escape is
// zero-filled at uncovered sites of the profile side; sites with no
// frequency entry are dropped from the comparison entirely.
type Comparison struct {
	Condition   string  `json:"condition"`
	SampleSize  int     `json:"sample_size"`
	SpearmanRho float64 `json:"spearman_rho"`
	SpearmanP   float64 `json:"spearman_p"`
	PearsonR    float64 `json:"pearson_r"`
	PearsonP    float64 `json:"pearson_p"`
	MeanEscape  float64 `json:"mean_escape"`
	MaxEscape   float64 `json:"max_escape"`
	TopSite     int     `json:"top_site"`
	Description string  `json:"description"`
}

// Compare runs the escape-versus-frequency comparison for one condition.
func Compare(table *escape.Table, condition string, frequencies map[int]float64) (*Comparison, error) {
	if !table.HasCondition(condition) {
		return nil, core.NewUnknownConditionError(condition)
	}
	if len(frequencies) < 3 {
		return nil, core.NewValidationError("frequencies",
			fmt.Sprintf("need at least 3 sites to correlate, have %d", len(frequencies)))
	}

	sites := make([]int, 0, len(frequencies))
	for site := range frequencies {
		sites = append(sites, site)
	}
	sort.Ints(sites)

	freqVec := make([]float64, len(sites))
	escVec := make([]float64, len(sites))
	for i, site := range sites {
		freqVec[i] = frequencies[site]
		v, _ := table.Value(condition, site)
		escVec[i] = v
	}

	rho, rhoP := spearman(escVec, freqVec)
	r, rP := pearson(escVec, freqVec)

	profile := table.Profile(condition, table.SiteUnion(condition))
	meanEscape, _ := stats.Mean(profile)
	maxEscape, _ := stats.Max(profile)

	return &Comparison{
		Condition:   condition,
		SampleSize:  len(sites),
		SpearmanRho: rho,
		SpearmanP:   rhoP,
		PearsonR:    r,
		PearsonP:    rP,
		MeanEscape:  meanEscape,
		MaxEscape:   maxEscape,
		TopSite:     topSite(table, condition),
		Description: describe(condition, rho, rhoP),
	}, nil
}

// spearman is rank correlation computed as Pearson over tie-averaged ranks.
// The classic 6*sum(d^2) shortcut misstates rho under ties, and both escape
// and frequency vectors are tie-heavy (zeros dominate).
func spearman(x, y []float64) (float64, float64) {
	return pearson(computeRanks(x), computeRanks(y))
}

// pearson returns the correlation coefficient and a two-tailed p-value from
// the t distribution with n-2 degrees of freedom.
func pearson(x, y []float64) (float64, float64) {
	n := float64(len(x))
	if len(x) != len(y) || len(x) < 3 {
		return 0, 1.0
	}

	sumX, sumY := 0.0, 0.0
	sumXY, sumX2, sumY2 := 0.0, 0.0, 0.0
	for i := 0; i < len(x); i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	numerator := n*sumXY - sumX*sumY
	denominator := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if denominator == 0 {
		return 0, 1.0
	}

	r := numerator / denominator
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}

	if r == 1 || r == -1 {
		return r, 0
	}
	tStat := r * math.Sqrt((n-2)/(1-r*r))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 2}
	pValue := 2 * (1 - tDist.CDF(math.Abs(tStat)))
	return r, pValue
}

// computeRanks converts values to ranks, handling ties by averaging
func computeRanks(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		groupSize := j - i
		avgRank := float64(i+1) + float64(groupSize-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

func topSite(table *escape.Table, condition string) int {
	best, bestVal := 0, math.Inf(-1)
	for _, site := range table.SiteUnion(condition) {
		if v, ok := table.Value(condition, site); ok && v > bestVal {
			best, bestVal = site, v
		}
	}
	return best
}

func describe(condition string, rho, p float64) string {
	if p > 0.05 {
		return fmt.Sprintf("No significant rank correlation between %s escape and variant frequencies (rho=%.3f, p=%.3f)", condition, rho, p)
	}
	direction := "positively"
	if rho < 0 {
		direction = "negatively"
	}
	return fmt.Sprintf("%s escape is %s rank-correlated with variant frequencies (rho=%.3f, p=%.3f)", condition, direction, rho, p)
}
