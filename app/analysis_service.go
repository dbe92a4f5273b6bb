package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"escapemap/adapters/stats/epitope"
	"escapemap/adapters/stats/frequency"
	"escapemap/adapters/stats/similarity"
	"escapemap/domain/core"
	"escapemap/domain/escape"
	"escapemap/domain/run"
	"escapemap/internal"
	"escapemap/internal/config"
	"escapemap/internal/embed"
	"escapemap/internal/report"
	"escapemap/ports"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"
)

// defaultTopSites bounds the strongest-site set in epitope overlap scoring
const defaultTopSites = 10

// AnalysisService orchestrates a full study run: one escape table in, one
// set of per-group artifacts and reports out. Groups run concurrently and
// fail independently; the run manifest records both kinds of outcome.
type AnalysisService struct {
	source      ports.ObservationSource
	frequencies ports.FrequencySource
	store       ports.ResultStore
	reports     *report.Writer
	scaler      *embed.Scaler
	logger      *internal.Logger
	maxParallel int64
	codeVersion core.CodeVersion
}

// NewAnalysisService creates the run orchestrator. frequencies may be nil
// when the study configures no frequency file.
func NewAnalysisService(
	source ports.ObservationSource,
	frequencies ports.FrequencySource,
	store ports.ResultStore,
	reports *report.Writer,
	logger *internal.Logger,
	maxParallel int,
	codeVersion string,
) *AnalysisService {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &AnalysisService{
		source:      source,
		frequencies: frequencies,
		store:       store,
		reports:     reports,
		scaler:      embed.NewScaler(),
		logger:      logger,
		maxParallel: int64(maxParallel),
		codeVersion: core.CodeVersion(codeVersion),
	}
}

// RunRequest defines the inputs for one analysis run
type RunRequest struct {
	Study *config.StudyConfig
	RunID core.RunID // optional, will be generated if empty
}

// RunResult contains the complete output of an analysis run
type RunResult struct {
	RunID     core.RunID    `json:"run_id"`
	Manifest  *run.Manifest `json:"manifest"`
	RuntimeMs int64         `json:"runtime_ms"`
	Success   bool          `json:"success"`
}

type groupOutcome struct {
	seed      int64
	artifacts []core.ArtifactID
	err       error
}

// RunAnalysis executes every group of the study against a freshly read
// table. A failing group is recorded in the manifest and never stops its
// siblings; the run itself fails only when reading the table or persisting
// the manifest fails.
func (s *AnalysisService) RunAnalysis(ctx context.Context, req RunRequest) (*RunResult, error) {
	startTime := time.Now()

	runID := req.RunID
	if runID == "" {
		runID = core.RunID(core.NewID())
	}
	study := req.Study

	table, err := s.source.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read observation table: %w", err)
	}
	s.logger.Info("Run %s: %d conditions in table, %d groups to analyze",
		runID, len(table.Conditions()), len(study.Groups))

	freqs, freqErr := s.loadFrequencies(ctx, study)

	manifest := run.NewManifest(runID, table.Fingerprint(), study.Hash, s.codeVersion)

	outcomes := make([]groupOutcome, len(study.Groups))
	sem := semaphore.NewWeighted(s.maxParallel)
	var wg sync.WaitGroup
	for i := range study.Groups {
		group := study.Groups[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = groupOutcome{err: err}
			continue
		}
		wg.Add(1)
		go func(i int, group config.GroupConfig) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = s.runGroup(ctx, runID, study, group, table, freqs, freqErr)
		}(i, group)
	}
	wg.Wait()

	// Manifest entries go in study order regardless of completion order.
	for i, group := range study.Groups {
		if outcomes[i].err != nil {
			s.logger.Warn("Group %q failed: %v", group.Name, outcomes[i].err)
			manifest.RecordFailed(group.Name, outcomes[i].err)
			continue
		}
		manifest.RecordCompleted(group.Name, outcomes[i].seed, outcomes[i].artifacts)
	}

	if err := s.store.SaveArtifact(ctx, runID, manifest.ToCoreArtifact()); err != nil {
		return nil, fmt.Errorf("failed to store run manifest: %w", err)
	}
	if _, err := s.reports.WriteRun(manifest); err != nil {
		return nil, fmt.Errorf("failed to write run report: %w", err)
	}

	runtimeMs := time.Since(startTime).Milliseconds()
	s.logger.Info("Run %s: %d groups completed, %d failed in %dms",
		runID, manifest.CompletedCount(), manifest.FailedCount(), runtimeMs)

	return &RunResult{
		RunID:     runID,
		Manifest:  manifest,
		RuntimeMs: runtimeMs,
		Success:   manifest.FailedCount() == 0,
	}, nil
}

// loadFrequencies reads the frequency file once per run if any group wants
// it. A load failure is deferred to the groups that asked for comparison,
// so groups without one still run.
func (s *AnalysisService) loadFrequencies(ctx context.Context, study *config.StudyConfig) (map[int]float64, error) {
	needed := false
	for _, g := range study.Groups {
		if g.CompareFrequencies {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}
	if s.frequencies == nil {
		return nil, fmt.Errorf("%w: frequency comparison requested but no frequencies file configured",
			core.ErrInvalidConfig)
	}
	return s.frequencies.ReadFrequencies(ctx)
}

func (s *AnalysisService) runGroup(
	ctx context.Context,
	runID core.RunID,
	study *config.StudyConfig,
	group config.GroupConfig,
	table *escape.Table,
	freqs map[int]float64,
	freqErr error,
) groupOutcome {
	s.logger.Info("Group %q: %d conditions, method %s, exponent %g",
		group.Name, len(group.Conditions), group.Method, group.Exponent)

	engine, err := similarity.NewEngine(group.Exponent)
	if err != nil {
		return groupOutcome{err: err}
	}
	method, err := escape.ParseDissimilarityMethod(group.Method)
	if err != nil {
		return groupOutcome{err: err}
	}

	sim, err := engine.Matrix(table, group.ConditionNames())
	if err != nil {
		return groupOutcome{err: fmt.Errorf("similarity matrix: %w", err)}
	}
	dis, err := similarity.Derive(sim, method)
	if err != nil {
		return groupOutcome{err: fmt.Errorf("dissimilarity matrix: %w", err)}
	}
	embedding, err := s.scaler.Embed(dis, group.Seed)
	if err != nil {
		return groupOutcome{err: fmt.Errorf("embedding: %w", err)}
	}

	var comparisons []frequency.Comparison
	if group.CompareFrequencies {
		if freqErr != nil {
			return groupOutcome{err: fmt.Errorf("frequency comparison: %w", freqErr)}
		}
		for _, name := range group.ConditionNames() {
			cmp, err := frequency.Compare(table, name, freqs)
			if err != nil {
				return groupOutcome{err: fmt.Errorf("frequency comparison for %q: %w", name, err)}
			}
			comparisons = append(comparisons, *cmp)
		}
	}

	var overlaps []epitope.Overlap
	for _, epitopeName := range group.Epitopes {
		sites := study.Epitopes[epitopeName]
		for _, name := range group.ConditionNames() {
			overlap, err := epitope.Score(table, name, epitopeName, sites, defaultTopSites)
			if err != nil {
				return groupOutcome{err: fmt.Errorf("epitope overlap %q for %q: %w", epitopeName, name, err)}
			}
			overlaps = append(overlaps, *overlap)
		}
	}

	// Reports carry display names; artifacts keep the table's own condition
	// names so downstream joins stay stable.
	display := group.DisplayMap()
	written, err := s.reports.WriteGroup(runID, report.GroupData{
		Group:         group.Name,
		Exponent:      group.Exponent,
		Seed:          embedding.Seed,
		Similarity:    escape.SimilarityMatrix{Matrix: sim.Relabeled(display)},
		Dissimilarity: escape.DissimilarityMatrix{Matrix: dis.Relabeled(display), Method: dis.Method},
		Embedding:     relabelPoints(embedding, display),
		Comparisons:   comparisons,
		Overlaps:      overlaps,
	})
	if err != nil {
		return groupOutcome{err: fmt.Errorf("writing group report: %w", err)}
	}

	artifacts := buildArtifacts(group.Name, sim, dis, embedding, comparisons, overlaps)
	artifacts = append(artifacts, core.Artifact{
		ID:        core.NewID(),
		Kind:      core.ArtifactGroupReport,
		Group:     group.Name,
		Payload:   map[string]interface{}{"files": written},
		CreatedAt: core.Now(),
	})

	ids := make([]core.ArtifactID, 0, len(artifacts))
	for _, artifact := range artifacts {
		if err := s.store.SaveArtifact(ctx, runID, artifact); err != nil {
			return groupOutcome{err: fmt.Errorf("storing %s artifact: %w", artifact.Kind, err)}
		}
		ids = append(ids, core.ArtifactID(artifact.ID))
	}

	return groupOutcome{seed: embedding.Seed, artifacts: ids}
}

func buildArtifacts(
	groupName string,
	sim escape.SimilarityMatrix,
	dis escape.DissimilarityMatrix,
	embedding *embed.Result,
	comparisons []frequency.Comparison,
	overlaps []epitope.Overlap,
) []core.Artifact {
	newArtifact := func(kind core.ArtifactKind, payload interface{}) core.Artifact {
		return core.Artifact{
			ID:        core.NewID(),
			Kind:      kind,
			Group:     groupName,
			Payload:   payload,
			CreatedAt: core.Now(),
		}
	}

	artifacts := []core.Artifact{
		newArtifact(core.ArtifactSimilarityMatrix, sim),
		newArtifact(core.ArtifactDissimilarityMatrix, dis),
		newArtifact(core.ArtifactEmbedding, embedding),
	}
	for _, c := range comparisons {
		artifacts = append(artifacts, newArtifact(core.ArtifactFrequencyComparison, c))
	}
	for _, o := range overlaps {
		artifacts = append(artifacts, newArtifact(core.ArtifactEpitopeOverlap, o))
	}
	return artifacts
}

func relabelPoints(result *embed.Result, display map[string]string) *embed.Result {
	out := &embed.Result{
		Points:     make([]embed.Point, len(result.Points)),
		Stress:     result.Stress,
		Iterations: result.Iterations,
		Seed:       result.Seed,
	}
	for i, p := range result.Points {
		if name, ok := display[p.Condition]; ok {
			p.Condition = name
		}
		out.Points[i] = p
	}
	return out
}

// PairwiseResult is the output of a one-off pairwise comparison
type PairwiseResult struct {
	ConditionA    string                     `json:"condition_a"`
	ConditionB    string                     `json:"condition_b"`
	Exponent      float64                    `json:"exponent"`
	Method        escape.DissimilarityMethod `json:"method"`
	UnionSites    int                        `json:"union_sites"`
	Similarity    float64                    `json:"similarity"`
	Dissimilarity float64                    `json:"dissimilarity"`
}

// Pairwise compares two conditions directly, reading the table fresh.
func (s *AnalysisService) Pairwise(ctx context.Context, conditionA, conditionB string, exponent float64, methodName string) (*PairwiseResult, error) {
	engine, err := similarity.NewEngine(exponent)
	if err != nil {
		return nil, err
	}
	method, err := escape.ParseDissimilarityMethod(methodName)
	if err != nil {
		return nil, err
	}

	table, err := s.source.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read observation table: %w", err)
	}

	sim, err := engine.Pairwise(table, conditionA, conditionB)
	if err != nil {
		return nil, err
	}
	dis, err := similarity.Transform(sim, method)
	if err != nil {
		return nil, core.NewLogDomainError(conditionA, conditionB, sim)
	}

	return &PairwiseResult{
		ConditionA:    conditionA,
		ConditionB:    conditionB,
		Exponent:      exponent,
		Method:        method,
		UnionSites:    len(table.SiteUnion(conditionA, conditionB)),
		Similarity:    sim,
		Dissimilarity: dis,
	}, nil
}

// ConditionInfo summarizes one condition of the observation table
type ConditionInfo struct {
	Name        string  `json:"name"`
	Sites       int     `json:"sites"`
	TotalEscape float64 `json:"total_escape"`
	MeanEscape  float64 `json:"mean_escape"`
	MaxEscape   float64 `json:"max_escape"`
}

// Conditions lists the table's conditions in first-appearance order with
// profile summary statistics.
func (s *AnalysisService) Conditions(ctx context.Context) ([]ConditionInfo, error) {
	table, err := s.source.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read observation table: %w", err)
	}

	conditions := table.Conditions()
	infos := make([]ConditionInfo, 0, len(conditions))
	for _, name := range conditions {
		profile := table.Profile(name, table.SiteUnion(name))
		total, _ := stats.Sum(profile)
		mean, _ := stats.Mean(profile)
		max, _ := stats.Max(profile)
		infos = append(infos, ConditionInfo{
			Name:        name,
			Sites:       table.SiteCount(name),
			TotalEscape: total,
			MeanEscape:  mean,
			MaxEscape:   max,
		})
	}
	return infos, nil
}
