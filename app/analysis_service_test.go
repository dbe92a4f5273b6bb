package app

import (
	"context"
	"math"
	"sync"
	"testing"

	"escapemap/domain/core"
	"escapemap/domain/escape"
	"escapemap/internal"
	"escapemap/internal/config"
	"escapemap/internal/report"
	"escapemap/internal/testkit"
	"escapemap/ports"
)

type fakeSource struct {
	table *escape.Table
}

func (f *fakeSource) ReadTable(ctx context.Context) (*escape.Table, error) {
	return f.table, nil
}

type fakeFrequencies struct {
	freqs map[int]float64
}

func (f *fakeFrequencies) ReadFrequencies(ctx context.Context) (map[int]float64, error) {
	return f.freqs, nil
}

type memoryStore struct {
	mu        sync.Mutex
	artifacts map[core.RunID][]core.Artifact
}

func newMemoryStore() *memoryStore {
	return &memoryStore{artifacts: make(map[core.RunID][]core.Artifact)}
}

func (m *memoryStore) SaveArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[runID] = append(m.artifacts[runID], artifact)
	return nil
}

func (m *memoryStore) GetArtifact(ctx context.Context, runID core.RunID, artifactID core.ArtifactID) (*core.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts[runID] {
		if core.ArtifactID(a.ID) == artifactID {
			copied := a
			return &copied, nil
		}
	}
	return nil, core.ErrArtifactNotFound
}

func (m *memoryStore) ListArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Artifact(nil), m.artifacts[runID]...), nil
}

func (m *memoryStore) ListRuns(ctx context.Context, limit int) ([]ports.StoredRun, error) {
	return nil, nil
}

func (m *memoryStore) kindsForGroup(runID core.RunID, group string) map[core.ArtifactKind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make(map[core.ArtifactKind]int)
	for _, a := range m.artifacts[runID] {
		if a.Group == group {
			kinds[a.Kind]++
		}
	}
	return kinds
}

func testTable(t *testing.T) *escape.Table {
	t.Helper()
	table, err := escape.NewTable([]escape.Observation{
		{Condition: "mAb-1", Site: 484, Metric: 0.9},
		{Condition: "mAb-1", Site: 490, Metric: 0.3},
		{Condition: "mAb-2", Site: 484, Metric: 0.8},
		{Condition: "mAb-2", Site: 501, Metric: 0.4},
		{Condition: "serum-A", Site: 490, Metric: 0.5},
		{Condition: "serum-A", Site: 501, Metric: 0.5},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func newTestService(t *testing.T, source ports.ObservationSource, freqs ports.FrequencySource, store ports.ResultStore) *AnalysisService {
	t.Helper()
	writer := report.NewWriter(t.TempDir())
	logger := internal.NewLogger(internal.LogLevelError)
	return NewAnalysisService(source, freqs, store, writer, logger, 2, "test")
}

func int64Ptr(v int64) *int64 { return &v }

func TestRunAnalysis_CompletesAllGroups(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, store)

	study := &config.StudyConfig{
		Hash: core.NewConfigHash([]byte("study")),
		Groups: []config.GroupConfig{
			{
				Name: "antibodies", Method: "one_minus", Exponent: 1, Seed: int64Ptr(7),
				Conditions: []config.ConditionConfig{{Name: "mAb-1"}, {Name: "mAb-2"}},
			},
			{
				Name: "mixed", Method: "one_minus", Exponent: 2, Seed: int64Ptr(7),
				Conditions: []config.ConditionConfig{{Name: "mAb-1"}, {Name: "serum-A"}},
			},
		},
	}

	result, err := service.RunAnalysis(context.Background(), RunRequest{Study: study})
	if err != nil {
		t.Fatalf("RunAnalysis failed: %v", err)
	}
	if !result.Success {
		t.Error("Expected run to succeed")
	}
	if result.RunID == "" {
		t.Error("Expected a generated run ID")
	}
	if result.Manifest.CompletedCount() != 2 || result.Manifest.FailedCount() != 0 {
		t.Errorf("Expected 2 completed, 0 failed, got %d/%d",
			result.Manifest.CompletedCount(), result.Manifest.FailedCount())
	}

	// Manifest order follows study order, not completion order.
	if result.Manifest.Groups[0].Group != "antibodies" || result.Manifest.Groups[1].Group != "mixed" {
		t.Errorf("Manifest groups out of study order: %+v", result.Manifest.Groups)
	}

	for _, group := range []string{"antibodies", "mixed"} {
		kinds := store.kindsForGroup(result.RunID, group)
		for _, kind := range []core.ArtifactKind{
			core.ArtifactSimilarityMatrix,
			core.ArtifactDissimilarityMatrix,
			core.ArtifactEmbedding,
			core.ArtifactGroupReport,
		} {
			if kinds[kind] != 1 {
				t.Errorf("Group %q: expected one %s artifact, got %d", group, kind, kinds[kind])
			}
		}
	}

	manifests := store.kindsForGroup(result.RunID, "")
	if manifests[core.ArtifactRunManifest] != 1 {
		t.Errorf("Expected one run manifest artifact, got %d", manifests[core.ArtifactRunManifest])
	}
}

func TestRunAnalysis_IsolatesFailingGroup(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, store)

	study := &config.StudyConfig{
		Hash: core.NewConfigHash([]byte("study")),
		Groups: []config.GroupConfig{
			{
				Name: "bad", Method: "one_minus", Exponent: 1, Seed: int64Ptr(7),
				Conditions: []config.ConditionConfig{{Name: "mAb-1"}, {Name: "no-such-condition"}},
			},
			{
				Name: "good", Method: "one_minus", Exponent: 1, Seed: int64Ptr(7),
				Conditions: []config.ConditionConfig{{Name: "mAb-1"}, {Name: "mAb-2"}},
			},
		},
	}

	result, err := service.RunAnalysis(context.Background(), RunRequest{Study: study})
	if err != nil {
		t.Fatalf("RunAnalysis failed: %v", err)
	}
	if result.Success {
		t.Error("Expected run with a failed group to report Success=false")
	}
	if result.Manifest.CompletedCount() != 1 || result.Manifest.FailedCount() != 1 {
		t.Errorf("Expected 1 completed, 1 failed, got %d/%d",
			result.Manifest.CompletedCount(), result.Manifest.FailedCount())
	}

	bad, ok := result.Manifest.GroupFor("bad")
	if !ok || bad.Status != "failed" {
		t.Fatalf("Expected failed entry for group bad, got %+v", bad)
	}
	if bad.Error == "" {
		t.Error("Expected failed group to record its error")
	}
	if len(bad.Artifacts) != 0 {
		t.Errorf("Failed group should record no artifacts, got %d", len(bad.Artifacts))
	}

	good, ok := result.Manifest.GroupFor("good")
	if !ok || good.Status != "completed" {
		t.Fatalf("Expected completed entry for group good, got %+v", good)
	}
	if len(good.Artifacts) != 4 {
		t.Errorf("Expected 4 artifacts for group good, got %d", len(good.Artifacts))
	}
}

func TestRunAnalysis_FrequencyComparisonWithoutSource(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, store)

	study := &config.StudyConfig{
		Hash: core.NewConfigHash([]byte("study")),
		Groups: []config.GroupConfig{
			{
				Name: "wants-frequencies", Method: "one_minus", Exponent: 1, Seed: int64Ptr(7),
				Conditions:         []config.ConditionConfig{{Name: "mAb-1"}, {Name: "mAb-2"}},
				CompareFrequencies: true,
			},
		},
	}

	result, err := service.RunAnalysis(context.Background(), RunRequest{Study: study})
	if err != nil {
		t.Fatalf("RunAnalysis failed: %v", err)
	}
	if result.Success {
		t.Error("Expected failure when frequencies are requested but not configured")
	}
	entry, _ := result.Manifest.GroupFor("wants-frequencies")
	if entry.Status != "failed" {
		t.Errorf("Expected group to fail, got status %q", entry.Status)
	}
}

func TestRunAnalysis_WithFrequenciesAndEpitopes(t *testing.T) {
	store := newMemoryStore()
	freqs := &fakeFrequencies{freqs: map[int]float64{
		484: 0.30, 490: 0.20, 501: 0.45, 417: 0.05, 452: 0.15,
	}}
	service := newTestService(t, &fakeSource{table: testTable(t)}, freqs, store)

	study := &config.StudyConfig{
		Hash:     core.NewConfigHash([]byte("study")),
		Epitopes: map[string][]int{"class-E": {484, 490}},
		Groups: []config.GroupConfig{
			{
				Name: "full", Method: "one_minus", Exponent: 1, Seed: int64Ptr(7),
				Conditions:         []config.ConditionConfig{{Name: "mAb-1"}, {Name: "mAb-2"}},
				CompareFrequencies: true,
				Epitopes:           []string{"class-E"},
			},
		},
	}

	result, err := service.RunAnalysis(context.Background(), RunRequest{Study: study})
	if err != nil {
		t.Fatalf("RunAnalysis failed: %v", err)
	}
	if !result.Success {
		entry, _ := result.Manifest.GroupFor("full")
		t.Fatalf("Expected success, group error: %s", entry.Error)
	}

	kinds := store.kindsForGroup(result.RunID, "full")
	if kinds[core.ArtifactFrequencyComparison] != 2 {
		t.Errorf("Expected 2 frequency comparison artifacts, got %d", kinds[core.ArtifactFrequencyComparison])
	}
	if kinds[core.ArtifactEpitopeOverlap] != 2 {
		t.Errorf("Expected 2 epitope overlap artifacts, got %d", kinds[core.ArtifactEpitopeOverlap])
	}
}

// TestRunAnalysis_SyntheticPanel drives a full run over a generated panel:
// one group per epitope class, frequency comparison and epitope overlap on
// the class whose sites dominate circulating variants.
func TestRunAnalysis_SyntheticPanel(t *testing.T) {
	generator := testkit.NewPanelGenerator(testkit.DefaultPanelConfig())
	table, err := generator.Table()
	if err != nil {
		t.Fatalf("Failed to build panel table: %v", err)
	}

	store := newMemoryStore()
	freqs := &fakeFrequencies{freqs: generator.Frequencies()}
	service := newTestService(t, &fakeSource{table: table}, freqs, store)

	conditionsOf := func(class int) []config.ConditionConfig {
		var out []config.ConditionConfig
		for _, name := range generator.ClassConditions(class) {
			out = append(out, config.ConditionConfig{Name: name})
		}
		return out
	}

	study := &config.StudyConfig{
		Hash:     core.NewConfigHash([]byte("panel-study")),
		Epitopes: map[string][]int{"dominant": generator.ClassSites(0)},
		Groups: []config.GroupConfig{
			{
				Name: "class-1", Method: "one_minus", Exponent: 1, Seed: int64Ptr(42),
				Conditions:         conditionsOf(0),
				CompareFrequencies: true,
				Epitopes:           []string{"dominant"},
			},
			{
				Name: "class-2", Method: "one_minus", Exponent: 1, Seed: int64Ptr(42),
				Conditions: conditionsOf(1),
			},
			{
				Name: "class-3", Method: "minus_log", Exponent: 2, Seed: int64Ptr(42),
				Conditions: conditionsOf(2),
			},
		},
	}

	result, err := service.RunAnalysis(context.Background(), RunRequest{Study: study})
	if err != nil {
		t.Fatalf("RunAnalysis failed: %v", err)
	}
	if !result.Success {
		for _, g := range result.Manifest.Groups {
			if g.Error != "" {
				t.Logf("group %s: %s", g.Group, g.Error)
			}
		}
		t.Fatal("Expected panel run to succeed")
	}
	if result.Manifest.CompletedCount() != 3 {
		t.Errorf("Expected 3 completed groups, got %d", result.Manifest.CompletedCount())
	}

	perClass := generator.ClassConditions(0)
	kinds := store.kindsForGroup(result.RunID, "class-1")
	if kinds[core.ArtifactFrequencyComparison] != len(perClass) {
		t.Errorf("Expected %d frequency comparisons, got %d",
			len(perClass), kinds[core.ArtifactFrequencyComparison])
	}
	if kinds[core.ArtifactEpitopeOverlap] != len(perClass) {
		t.Errorf("Expected %d epitope overlaps, got %d",
			len(perClass), kinds[core.ArtifactEpitopeOverlap])
	}
}

func TestPairwise(t *testing.T) {
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, newMemoryStore())

	result, err := service.Pairwise(context.Background(), "mAb-1", "mAb-1", 1, "one_minus")
	if err != nil {
		t.Fatalf("Pairwise failed: %v", err)
	}
	if result.Similarity < 1-1e-12 || result.Similarity > 1+1e-12 {
		t.Errorf("Self-similarity should be 1, got %f", result.Similarity)
	}
	if result.Dissimilarity > 1e-12 {
		t.Errorf("Self-dissimilarity should be 0, got %f", result.Dissimilarity)
	}
	if result.UnionSites != 2 {
		t.Errorf("Expected 2 union sites for mAb-1, got %d", result.UnionSites)
	}
}

func TestPairwise_UnknownCondition(t *testing.T) {
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, newMemoryStore())

	_, err := service.Pairwise(context.Background(), "mAb-1", "no-such-condition", 1, "one_minus")
	if err == nil {
		t.Fatal("Expected error for unknown condition")
	}
	if !core.IsInvalidInputError(err) {
		t.Errorf("Expected invalid input error, got %v", err)
	}
}

func TestPairwise_RejectsBadConfig(t *testing.T) {
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, newMemoryStore())

	if _, err := service.Pairwise(context.Background(), "mAb-1", "mAb-2", 0.5, "one_minus"); !core.IsConfigError(err) {
		t.Errorf("Expected config error for exponent 0.5, got %v", err)
	}
	if _, err := service.Pairwise(context.Background(), "mAb-1", "mAb-2", 1, "euclidean"); !core.IsConfigError(err) {
		t.Errorf("Expected config error for unknown method, got %v", err)
	}
}

func TestConditions(t *testing.T) {
	service := newTestService(t, &fakeSource{table: testTable(t)}, nil, newMemoryStore())

	infos, err := service.Conditions(context.Background())
	if err != nil {
		t.Fatalf("Conditions failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 conditions, got %d", len(infos))
	}
	if infos[0].Name != "mAb-1" || infos[0].Sites != 2 {
		t.Errorf("Unexpected first condition: %+v", infos[0])
	}
	if math.Abs(infos[0].TotalEscape-1.2) > 1e-9 {
		t.Errorf("Expected total escape 1.2 for mAb-1, got %f", infos[0].TotalEscape)
	}
	if math.Abs(infos[0].MeanEscape-0.6) > 1e-9 {
		t.Errorf("Expected mean escape 0.6 for mAb-1, got %f", infos[0].MeanEscape)
	}
	if math.Abs(infos[0].MaxEscape-0.9) > 1e-9 {
		t.Errorf("Expected max escape 0.9 for mAb-1, got %f", infos[0].MaxEscape)
	}
}
