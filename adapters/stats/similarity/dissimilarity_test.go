package similarity

import (
	"math"
	"strings"
	"testing"

	"escapemap/domain/core"
	"escapemap/domain/escape"
)

func TestTransformAtPerfectSimilarity(t *testing.T) {
	for _, method := range []escape.DissimilarityMethod{escape.MethodOneMinus, escape.MethodMinusLog} {
		d, err := Transform(1, method)
		if err != nil {
			t.Fatalf("Transform(1, %s) failed: %v", method, err)
		}
		if d != 0 {
			t.Errorf("Expected %s dissimilarity 0 at similarity 1, got %v", method, d)
		}
	}
}

func TestTransformOneMinus(t *testing.T) {
	d, err := Transform(0.25, escape.MethodOneMinus)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if d != 0.75 {
		t.Errorf("Expected 0.75, got %v", d)
	}

	// Drift above 1 yields a negative dissimilarity rather than an error.
	d, err = Transform(1.0000000001, escape.MethodOneMinus)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if d >= 0 {
		t.Errorf("Expected negative dissimilarity for similarity above 1, got %v", d)
	}
}

func TestTransformMinusLog(t *testing.T) {
	d, err := Transform(0.5, escape.MethodMinusLog)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if math.Abs(d-math.Ln2) > 1e-12 {
		t.Errorf("Expected ln 2, got %v", d)
	}

	for _, s := range []float64{0, -0.1} {
		_, err := Transform(s, escape.MethodMinusLog)
		if err == nil {
			t.Fatalf("Expected error for minus_log at similarity %v", s)
		}
		if !core.IsDomainError(err) {
			t.Errorf("Expected domain error at similarity %v, got %v", s, err)
		}
	}
}

func TestTransformRejectsUnknownMethod(t *testing.T) {
	_, err := Transform(0.5, escape.DissimilarityMethod("euclidean"))
	if err == nil {
		t.Fatal("Expected error for unknown method")
	}
	if !core.IsConfigError(err) {
		t.Errorf("Expected configuration error classification, got %v", err)
	}
}

func TestDeriveOneMinus(t *testing.T) {
	sim := escape.SimilarityMatrix{Matrix: escape.NewMatrix([]string{"A", "B"})}
	sim.Cells[0][0], sim.Cells[1][1] = 1, 1
	sim.Cells[0][1], sim.Cells[1][0] = 0.7071, 0.7071

	dis, err := Derive(sim, escape.MethodOneMinus)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if dis.Method != escape.MethodOneMinus {
		t.Errorf("Expected method recorded on matrix, got %s", dis.Method)
	}
	if math.Abs(dis.Cells[0][1]-0.2929) > 1e-12 {
		t.Errorf("Expected 0.2929, got %v", dis.Cells[0][1])
	}
	if dis.Cells[0][0] != 0 || dis.Cells[1][1] != 0 {
		t.Error("Expected zero diagonal after one_minus of a unit diagonal")
	}
}

// TestDeriveMinusLogIdentifiesOffendingPair checks that a zero similarity
// cell fails with the condition pair named, not just a bare log error.
func TestDeriveMinusLogIdentifiesOffendingPair(t *testing.T) {
	sim := escape.SimilarityMatrix{Matrix: escape.NewMatrix([]string{"A", "B"})}
	sim.Cells[0][0], sim.Cells[1][1] = 1, 1
	sim.Cells[0][1], sim.Cells[1][0] = 0, 0

	_, err := Derive(sim, escape.MethodMinusLog)
	if err == nil {
		t.Fatal("Expected error for zero similarity under minus_log")
	}
	if !core.IsDomainError(err) {
		t.Errorf("Expected domain error classification, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "A") || !strings.Contains(msg, "B") {
		t.Errorf("Expected offending pair in error message, got %q", msg)
	}
}

func TestDeriveRejectsUnknownMethodBeforeComputing(t *testing.T) {
	sim := escape.SimilarityMatrix{Matrix: escape.NewMatrix([]string{"A"})}
	_, err := Derive(sim, escape.DissimilarityMethod("manhattan"))
	if err == nil {
		t.Fatal("Expected error for unknown method")
	}
	if !core.IsConfigError(err) {
		t.Errorf("Expected configuration error classification, got %v", err)
	}
}
