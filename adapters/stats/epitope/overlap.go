package epitope

import (
	"sort"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

// Overlap quantifies how much of a condition's escape falls inside a named
// structural epitope site set. InsideFraction lies in [0, 1]. FoldEnrichment
// is the mean escape over epitope sites divided by the mean over the whole
// site universe, so 1 means no enrichment; it is finite whenever the
// condition has any nonzero escape.
type Overlap struct {
	Condition      string  `json:"condition"`
	Epitope        string  `json:"epitope"`
	EpitopeSites   int     `json:"epitope_sites"`
	TotalEscape    float64 `json:"total_escape"`
	InsideEscape   float64 `json:"inside_escape"`
	InsideFraction float64 `json:"inside_fraction"`
	TopSiteJaccard float64 `json:"top_site_jaccard"`
	FoldEnrichment float64 `json:"fold_enrichment"`
}

// Score computes the overlap between one condition's escape profile and one
// epitope site set. The site universe is the union of the condition's
// observed sites and the epitope's sites, with unobserved sites counting as
// zero escape. topK bounds the strongest-site comparison behind the Jaccard
// index.
func Score(table *escape.Table, condition, epitopeName string, epitopeSites []int, topK int) (*Overlap, error) {
	if !table.HasCondition(condition) {
		return nil, core.NewUnknownConditionError(condition)
	}
	if len(epitopeSites) == 0 {
		return nil, core.NewValidationError("epitope", "site set "+epitopeName+" is empty")
	}
	if topK < 1 {
		return nil, core.NewValidationError("topK", "must be at least 1")
	}

	inEpitope := make(map[int]bool, len(epitopeSites))
	for _, site := range epitopeSites {
		inEpitope[site] = true
	}

	universe := make(map[int]bool)
	for _, site := range table.SiteUnion(condition) {
		universe[site] = true
	}
	for site := range inEpitope {
		universe[site] = true
	}

	total, inside := 0.0, 0.0
	for site := range universe {
		v, _ := table.Value(condition, site)
		total += v
		if inEpitope[site] {
			inside += v
		}
	}
	if total == 0 {
		return nil, core.NewZeroNormError(condition)
	}

	meanOverall := total / float64(len(universe))
	meanInside := inside / float64(len(inEpitope))

	return &Overlap{
		Condition:      condition,
		Epitope:        epitopeName,
		EpitopeSites:   len(inEpitope),
		TotalEscape:    total,
		InsideEscape:   inside,
		InsideFraction: inside / total,
		TopSiteJaccard: topSiteJaccard(table, condition, inEpitope, topK),
		FoldEnrichment: meanInside / meanOverall,
	}, nil
}

// topSiteJaccard compares the condition's topK strongest escape sites with
// the epitope set. Ranking breaks ties by site number so the result is
// stable across runs.
func topSiteJaccard(table *escape.Table, condition string, inEpitope map[int]bool, topK int) float64 {
	sites := table.SiteUnion(condition)
	sort.Slice(sites, func(i, j int) bool {
		vi, _ := table.Value(condition, sites[i])
		vj, _ := table.Value(condition, sites[j])
		if vi != vj {
			return vi > vj
		}
		return sites[i] < sites[j]
	})

	if topK > len(sites) {
		topK = len(sites)
	}
	top := make(map[int]bool, topK)
	for _, site := range sites[:topK] {
		top[site] = true
	}

	intersection := 0
	for site := range top {
		if inEpitope[site] {
			intersection++
		}
	}
	union := len(top) + len(inEpitope) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
