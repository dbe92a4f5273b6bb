package epitope

import (
	"math"
	"testing"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

func buildTable(t *testing.T, observations []escape.Observation) *escape.Table {
	t.Helper()
	table, err := escape.NewTable(observations)
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}
	return table
}

func TestScoreWorkedExample(t *testing.T) {
	table := buildTable(t, []escape.Observation{
		{Condition: "mAb-17", Site: 484, Metric: 0.5},
		{Condition: "mAb-17", Site: 490, Metric: 0.5},
		{Condition: "mAb-17", Site: 100, Metric: 0.25},
	})
	// Site 505 belongs to the epitope but was never observed: it joins the
	// universe with zero escape.
	result, err := Score(table, "mAb-17", "class-E", []int{484, 490, 505}, 2)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Condition != "mAb-17" || result.Epitope != "class-E" {
		t.Errorf("Labels not carried through: %+v", result)
	}
	if result.EpitopeSites != 3 {
		t.Errorf("Expected 3 epitope sites, got %d", result.EpitopeSites)
	}
	if result.TotalEscape != 1.25 {
		t.Errorf("Expected total escape 1.25, got %v", result.TotalEscape)
	}
	if result.InsideEscape != 1.0 {
		t.Errorf("Expected inside escape 1.0, got %v", result.InsideEscape)
	}
	if result.InsideFraction != 0.8 {
		t.Errorf("Expected inside fraction 0.8, got %v", result.InsideFraction)
	}
	// Mean inside (1.0/3) over mean across the 4-site universe (1.25/4).
	wantFold := (1.0 / 3.0) / (1.25 / 4.0)
	if math.Abs(result.FoldEnrichment-wantFold) > 1e-12 {
		t.Errorf("Expected fold enrichment %v, got %v", wantFold, result.FoldEnrichment)
	}
	// Top 2 sites are 484 and 490, both inside: |{484,490}| / |{484,490,505}|.
	if math.Abs(result.TopSiteJaccard-2.0/3.0) > 1e-12 {
		t.Errorf("Expected top-site Jaccard 2/3, got %v", result.TopSiteJaccard)
	}
}

func TestScoreTopKClampsToSiteCount(t *testing.T) {
	table := buildTable(t, []escape.Observation{
		{Condition: "mAb-17", Site: 484, Metric: 0.5},
		{Condition: "mAb-17", Site: 490, Metric: 0.5},
		{Condition: "mAb-17", Site: 100, Metric: 0.25},
	})
	result, err := Score(table, "mAb-17", "class-E", []int{484, 490, 505}, 50)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// All 3 observed sites rank in the top set: intersection 2, union 4.
	if math.Abs(result.TopSiteJaccard-0.5) > 1e-12 {
		t.Errorf("Expected clamped Jaccard 0.5, got %v", result.TopSiteJaccard)
	}
}

func TestScoreDisjointEpitope(t *testing.T) {
	table := buildTable(t, []escape.Observation{
		{Condition: "serum", Site: 10, Metric: 1.0},
		{Condition: "serum", Site: 20, Metric: 1.0},
	})
	result, err := Score(table, "serum", "elsewhere", []int{900, 901}, 2)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.InsideEscape != 0 || result.InsideFraction != 0 {
		t.Errorf("Expected zero overlap, got inside=%v fraction=%v",
			result.InsideEscape, result.InsideFraction)
	}
	if result.TopSiteJaccard != 0 {
		t.Errorf("Expected zero Jaccard for disjoint sets, got %v", result.TopSiteJaccard)
	}
	if result.FoldEnrichment != 0 {
		t.Errorf("Expected zero enrichment, got %v", result.FoldEnrichment)
	}
}

func TestScoreTieBreakIsDeterministic(t *testing.T) {
	// Sites 5 and 6 tie on escape; rank order must prefer the lower site so
	// repeated runs agree.
	table := buildTable(t, []escape.Observation{
		{Condition: "serum", Site: 6, Metric: 0.5},
		{Condition: "serum", Site: 5, Metric: 0.5},
		{Condition: "serum", Site: 1, Metric: 0.125},
	})
	for i := 0; i < 10; i++ {
		result, err := Score(table, "serum", "probe", []int{5}, 1)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if result.TopSiteJaccard != 1.0 {
			t.Fatalf("Run %d: expected top site 5 to win the tie, Jaccard %v",
				i, result.TopSiteJaccard)
		}
	}
}

func TestScoreZeroEscapeCondition(t *testing.T) {
	table := buildTable(t, []escape.Observation{
		{Condition: "dead", Site: 1, Metric: 0},
		{Condition: "dead", Site: 2, Metric: 0},
	})
	_, err := Score(table, "dead", "any", []int{1}, 1)
	if err == nil {
		t.Fatal("Expected error for zero-escape condition")
	}
	if !core.IsDomainError(err) {
		t.Errorf("Expected domain classification, got %v", err)
	}
}

func TestScoreRejectsBadInputs(t *testing.T) {
	table := buildTable(t, []escape.Observation{
		{Condition: "A", Site: 1, Metric: 1},
	})

	t.Run("unknown condition", func(t *testing.T) {
		_, err := Score(table, "ghost", "e", []int{1}, 1)
		if !core.IsInvalidInputError(err) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})
	t.Run("empty epitope", func(t *testing.T) {
		_, err := Score(table, "A", "e", nil, 1)
		if !core.IsInvalidInputError(err) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})
	t.Run("non-positive topK", func(t *testing.T) {
		_, err := Score(table, "A", "e", []int{1}, 0)
		if !core.IsInvalidInputError(err) {
			t.Errorf("Expected invalid input, got %v", err)
		}
	})
}
