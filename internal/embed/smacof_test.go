package embed

import (
	"math"
	"testing"

	"escapemap/adapters/stats/similarity"
	"escapemap/domain/escape"
	"escapemap/internal/testkit"
)

func dissimilarity(conditions []string, cells [][]float64) escape.DissimilarityMatrix {
	m := escape.NewMatrix(conditions)
	for i := range cells {
		copy(m.Cells[i], cells[i])
	}
	return escape.DissimilarityMatrix{Matrix: m, Method: escape.MethodOneMinus}
}

func TestEmbedDeterministicWithFixedSeed(t *testing.T) {
	dis := dissimilarity([]string{"A", "B", "C", "D"}, [][]float64{
		{0, 0.3, 0.8, 0.5},
		{0.3, 0, 0.6, 0.4},
		{0.8, 0.6, 0, 0.7},
		{0.5, 0.4, 0.7, 0},
	})
	seed := int64(42)

	first, err := NewScaler().Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	second, err := NewScaler().Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if first.Seed != 42 || second.Seed != 42 {
		t.Errorf("Expected seed 42 recorded, got %d and %d", first.Seed, second.Seed)
	}
	if first.Stress != second.Stress || first.Iterations != second.Iterations {
		t.Errorf("Expected identical runs: stress %v vs %v, iterations %d vs %d",
			first.Stress, second.Stress, first.Iterations, second.Iterations)
	}
	for i := range first.Points {
		if first.Points[i] != second.Points[i] {
			t.Errorf("Point %d differs between identical seeded runs: %+v vs %+v",
				i, first.Points[i], second.Points[i])
		}
	}
}

func TestEmbedSingleCondition(t *testing.T) {
	dis := dissimilarity([]string{"only"}, [][]float64{{0}})
	seed := int64(1)

	result, err := NewScaler().Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(result.Points))
	}
	p := result.Points[0]
	if p.Condition != "only" || p.X != 0 || p.Y != 0 {
		t.Errorf("Expected single point at origin, got %+v", p)
	}
	if result.Stress != 0 {
		t.Errorf("Expected zero stress, got %v", result.Stress)
	}
}

func TestEmbedTwoConditionsExact(t *testing.T) {
	dis := dissimilarity([]string{"A", "B"}, [][]float64{
		{0, 0.6},
		{0.6, 0},
	})
	seed := int64(7)

	result, err := NewScaler().Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	a, b := result.Points[0], result.Points[1]
	got := math.Hypot(a.X-b.X, a.Y-b.Y)
	if math.Abs(got-0.6) > 1e-12 {
		t.Errorf("Expected recovered distance 0.6, got %v", got)
	}
}

// TestEmbedEquilateralTriangle uses a perfectly embeddable target: three
// conditions all at dissimilarity 1 must land near an equilateral triangle
// with side 1.
func TestEmbedEquilateralTriangle(t *testing.T) {
	dis := dissimilarity([]string{"A", "B", "C"}, [][]float64{
		{0, 1, 1},
		{1, 0, 1},
		{1, 1, 0},
	})
	seed := int64(11)

	result, err := NewScalerWith(8, 500, 1e-12).Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if result.Stress > 0.01 {
		t.Errorf("Expected near-zero stress for embeddable target, got %v", result.Stress)
	}

	pts := result.Points
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			d := math.Hypot(pts[i].X-pts[j].X, pts[i].Y-pts[j].Y)
			if d < 0.9 || d > 1.1 {
				t.Errorf("Recovered distance (%s, %s) = %v, want close to 1",
					pts[i].Condition, pts[j].Condition, d)
			}
		}
	}

	// The Guttman update keeps the configuration centered.
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	if math.Abs(cx/3) > 1e-9 || math.Abs(cy/3) > 1e-9 {
		t.Errorf("Expected centered configuration, centroid (%v, %v)", cx/3, cy/3)
	}
}

func TestEmbedEmptyMatrixFails(t *testing.T) {
	dis := escape.DissimilarityMatrix{Matrix: escape.NewMatrix(nil), Method: escape.MethodOneMinus}
	if _, err := NewScaler().Embed(dis, nil); err == nil {
		t.Fatal("Expected error for empty matrix")
	}
}

// TestEmbedSeparatesPlantedClasses runs the full similarity to dissimilarity
// to embedding path over a synthetic panel: conditions sharing an epitope
// class must land closer to each other than to conditions of other classes.
func TestEmbedSeparatesPlantedClasses(t *testing.T) {
	generator := testkit.NewPanelGenerator(testkit.DefaultPanelConfig())
	table, err := generator.Table()
	if err != nil {
		t.Fatalf("Failed to build panel table: %v", err)
	}

	sim, err := similarity.DefaultEngine().Matrix(table, table.Conditions())
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	dis, err := similarity.Derive(sim, escape.MethodOneMinus)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	seed := int64(42)
	result, err := NewScaler().Embed(dis, &seed)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	classOf := make(map[string]int)
	for class := 0; class < 3; class++ {
		for _, name := range generator.ClassConditions(class) {
			classOf[name] = class
		}
	}

	var withinSum, crossSum float64
	var withinN, crossN int
	for i := 0; i < len(result.Points); i++ {
		for j := i + 1; j < len(result.Points); j++ {
			a, b := result.Points[i], result.Points[j]
			d := math.Hypot(a.X-b.X, a.Y-b.Y)
			if classOf[a.Condition] == classOf[b.Condition] {
				withinSum += d
				withinN++
			} else {
				crossSum += d
				crossN++
			}
		}
	}

	meanWithin := withinSum / float64(withinN)
	meanCross := crossSum / float64(crossN)
	if meanCross < 2*meanWithin {
		t.Errorf("Expected classes to separate in the map: mean within %.4f, mean cross %.4f",
			meanWithin, meanCross)
	}
}

func TestEmbedUnseededStillRuns(t *testing.T) {
	dis := dissimilarity([]string{"A", "B", "C"}, [][]float64{
		{0, 0.5, 0.5},
		{0.5, 0, 0.5},
		{0.5, 0.5, 0},
	})
	result, err := NewScaler().Embed(dis, nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(result.Points))
	}
}
