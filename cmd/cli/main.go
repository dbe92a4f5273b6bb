package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"escapemap/adapters/filestore"
	"escapemap/adapters/postgres"
	"escapemap/adapters/tabular"
	"escapemap/app"
	"escapemap/domain/core"
	"escapemap/domain/escape"
	"escapemap/domain/run"
	"escapemap/internal"
	"escapemap/internal/config"
	apperrors "escapemap/internal/errors"
	"escapemap/internal/migration"
	"escapemap/internal/report"
	"escapemap/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// Root-level overrides for the environment-driven paths.
var (
	dataFileFlag  string
	outputDirFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "escapemap",
		Short: "Antibody escape profile similarity and mapping",
	}

	rootCmd.PersistentFlags().StringVar(&dataFileFlag, "data", "", "Observation file (overrides DATA_FILE)")
	rootCmd.PersistentFlags().StringVar(&outputDirFlag, "out", "", "Directory for reports and file-backed results (overrides OUTPUT_DIR)")

	rootCmd.AddCommand(
		newRunCmd(),
		newPairCmd(),
		newConditionsCmd(),
		newRunsCmd(),
		newShowCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var runID string
	var outputFile string

	cmd := &cobra.Command{
		Use:   "run [study-file]",
		Short: "Run every analysis group of a study",
		Long: `Run the full analysis for a study configuration: per-group similarity and
dissimilarity matrices, 2D maps, and the optional frequency and epitope
comparisons. Artifacts go to the configured result store, reports and CSV
exports under OUTPUT_DIR.

The study file defaults to STUDY_CONFIG from the environment.

Example: escapemap run study.yaml --output run_result.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyFile := ""
			if len(args) > 0 {
				studyFile = args[0]
			}
			return runStudy(cmd.Context(), studyFile, runID, outputFile)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated if empty)")
	cmd.Flags().StringVar(&outputFile, "output", "", "Save the run result as JSON to this file")

	return cmd
}

func newPairCmd() *cobra.Command {
	var exponent float64
	var method string
	var studyFile string
	var outputFile string

	cmd := &cobra.Command{
		Use:   "pair [condition-a] [condition-b]",
		Short: "Compare two conditions directly",
		Long: `Compute the similarity and dissimilarity of two escape profiles without a
study file, reading the observation table from DATA_FILE.

Example: escapemap pair mAb-REGN10933 "participant C serum" --exponent 2 --method one_minus`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPair(cmd.Context(), args[0], args[1], exponent, method, studyFile, outputFile)
		},
	}

	cmd.Flags().Float64Var(&exponent, "exponent", 1, "Site weighting exponent (>= 1)")
	cmd.Flags().StringVar(&method, "method", string(escape.MethodOneMinus), "Dissimilarity method: one_minus|minus_log")
	cmd.Flags().StringVar(&studyFile, "study", "", "Study file for column mapping (defaults to STUDY_CONFIG, then built-in column names)")
	cmd.Flags().StringVar(&outputFile, "output", "", "Save the comparison as JSON to this file")

	return cmd
}

func newConditionsCmd() *cobra.Command {
	var studyFile string

	cmd := &cobra.Command{
		Use:   "conditions",
		Short: "List the conditions in the observation table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConditions(cmd.Context(), studyFile)
		},
	}

	cmd.Flags().StringVar(&studyFile, "study", "", "Study file for column mapping (defaults to STUDY_CONFIG, then built-in column names)")

	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored analysis runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRuns(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum runs to list (0 for all)")

	return cmd
}

func newShowCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the artifacts stored for one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), args[0], outputFile)
		},
	}

	cmd.Flags().StringVar(&outputFile, "output", "", "Save the artifacts as JSON to this file")

	return cmd
}

// loadEnvironment reads .env plus process environment into a validated config.
func loadEnvironment() (*config.Config, *internal.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dataFileFlag != "" {
		cfg.Paths.DataFile = dataFileFlag
	}
	if outputDirFlag != "" {
		cfg.Paths.OutputDir = outputDirFlag
	}
	return cfg, internal.NewDefaultLogger(), nil
}

// newTableSource builds the observation reader from the study's column
// mapping. A nil study falls back to the default columns.
func newTableSource(cfg *config.Config, metric config.MetricConfig) (ports.ObservationSource, error) {
	if cfg.Paths.DataFile == "" {
		return nil, apperrors.ConfigInvalid("DATA_FILE is required to read observations")
	}
	aggregation, err := escape.ParseAggregation(metric.Aggregation)
	if err != nil {
		return nil, err
	}
	columns := tabular.Columns{
		Condition: metric.ConditionColumn,
		Site:      metric.SiteColumn,
		Value:     metric.ValueColumn,
		Mutation:  metric.MutationColumn,
	}
	return tabular.NewReader(cfg.Paths.DataFile, columns, aggregation), nil
}

// loadMetric resolves the column mapping for commands that may run without a
// full study file.
func loadMetric(cfg *config.Config, studyFile string) (config.MetricConfig, error) {
	if studyFile == "" {
		studyFile = cfg.Paths.StudyFile
	}
	if studyFile == "" {
		return config.DefaultMetric(), nil
	}
	study, err := config.LoadStudy(studyFile)
	if err != nil {
		return config.MetricConfig{}, err
	}
	return study.Metric, nil
}

// openStore picks the result store: Postgres when DATABASE_URL is set,
// otherwise JSON files under OUTPUT_DIR.
func openStore(ctx context.Context, cfg *config.Config, logger *internal.Logger) (ports.ResultStore, func(), error) {
	if !cfg.HasDatabase() {
		logger.Debug("No DATABASE_URL set, storing artifacts under %s", cfg.Paths.OutputDir)
		return filestore.NewStore(cfg.Paths.OutputDir), func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to connect to database")
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, nil, apperrors.Wrap(err, "database migration failed")
	}
	return postgres.NewResultStore(db), func() { db.Close() }, nil
}

func runStudy(ctx context.Context, studyFile, runID, outputFile string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	if studyFile == "" {
		studyFile = cfg.Paths.StudyFile
	}
	if studyFile == "" {
		return apperrors.ConfigInvalid("no study file: pass one as an argument or set STUDY_CONFIG")
	}

	study, err := config.LoadStudy(studyFile)
	if err != nil {
		return fmt.Errorf("failed to load study: %w", err)
	}
	fmt.Printf("Running study %s (%d groups)...\n", studyFile, len(study.Groups))

	source, err := newTableSource(cfg, study.Metric)
	if err != nil {
		return err
	}
	var frequencies ports.FrequencySource
	if study.Frequencies != "" {
		frequencies = tabular.NewFrequencyReader(study.Frequencies)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	service := app.NewAnalysisService(
		source,
		frequencies,
		store,
		report.NewWriter(cfg.Paths.OutputDir),
		logger,
		cfg.Run.MaxParallelGroups,
		internal.Version,
	)

	result, err := service.RunAnalysis(ctx, app.RunRequest{Study: study, RunID: core.RunID(runID)})
	if err != nil {
		return fmt.Errorf("analysis run failed: %w", err)
	}

	fmt.Printf("\n=== RUN RESULTS ===\n")
	fmt.Printf("Run ID: %s\n", result.RunID)
	fmt.Printf("Fingerprint: %s\n", result.Manifest.Fingerprint.Fingerprint)
	fmt.Printf("Runtime: %d ms\n", result.RuntimeMs)
	fmt.Printf("Groups: %d completed, %d failed\n",
		result.Manifest.CompletedCount(), result.Manifest.FailedCount())
	for _, group := range result.Manifest.Groups {
		if group.Status == run.GroupCompleted {
			fmt.Printf("  ✅ %s (%d artifacts)\n", group.Group, len(group.Artifacts))
		} else {
			fmt.Printf("  ❌ %s: %s\n", group.Group, group.Error)
		}
	}
	fmt.Printf("\nReports written under %s/%s\n", cfg.Paths.OutputDir, result.RunID)

	if outputFile != "" {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		if err := os.WriteFile(outputFile, jsonData, 0644); err == nil {
			fmt.Printf("💾 Run result saved to: %s\n", outputFile)
		}
	}

	// Failed groups are isolated, not fatal; only a run with nothing
	// completed exits nonzero.
	if result.Manifest.CompletedCount() == 0 {
		return fmt.Errorf("all %d group(s) failed", result.Manifest.FailedCount())
	}
	return nil
}

func runPair(ctx context.Context, conditionA, conditionB string, exponent float64, method, studyFile, outputFile string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	metric, err := loadMetric(cfg, studyFile)
	if err != nil {
		return err
	}
	source, err := newTableSource(cfg, metric)
	if err != nil {
		return err
	}

	service := app.NewAnalysisService(
		source,
		nil,
		filestore.NewStore(cfg.Paths.OutputDir),
		report.NewWriter(cfg.Paths.OutputDir),
		logger,
		cfg.Run.MaxParallelGroups,
		internal.Version,
	)

	result, err := service.Pairwise(ctx, conditionA, conditionB, exponent, method)
	if err != nil {
		return fmt.Errorf("pairwise comparison failed: %w", err)
	}

	fmt.Printf("\n=== PAIRWISE COMPARISON ===\n")
	fmt.Printf("Condition A: %s\n", result.ConditionA)
	fmt.Printf("Condition B: %s\n", result.ConditionB)
	fmt.Printf("Exponent: %g\n", result.Exponent)
	fmt.Printf("Union Sites: %d\n", result.UnionSites)
	fmt.Printf("Similarity: %.6f\n", result.Similarity)
	fmt.Printf("Dissimilarity (%s): %.6f\n", result.Method, result.Dissimilarity)

	if outputFile != "" {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		if err := os.WriteFile(outputFile, jsonData, 0644); err == nil {
			fmt.Printf("💾 Comparison saved to: %s\n", outputFile)
		}
	}
	return nil
}

func runConditions(ctx context.Context, studyFile string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	metric, err := loadMetric(cfg, studyFile)
	if err != nil {
		return err
	}
	source, err := newTableSource(cfg, metric)
	if err != nil {
		return err
	}

	service := app.NewAnalysisService(
		source,
		nil,
		filestore.NewStore(cfg.Paths.OutputDir),
		report.NewWriter(cfg.Paths.OutputDir),
		logger,
		cfg.Run.MaxParallelGroups,
		internal.Version,
	)

	infos, err := service.Conditions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conditions: %w", err)
	}

	fmt.Printf("\n=== CONDITIONS (%d) ===\n", len(infos))
	for i, info := range infos {
		fmt.Printf("%d. %s (%d sites, total %.3f, mean %.3f, max %.3f)\n",
			i+1, info.Name, info.Sites, info.TotalEscape, info.MeanEscape, info.MaxEscape)
	}
	return nil
}

func runListRuns(ctx context.Context, limit int) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs found.")
		return nil
	}

	fmt.Printf("\n=== STORED RUNS (%d) ===\n", len(runs))
	for i, stored := range runs {
		fmt.Printf("%d. %s  %s  %d artifacts\n",
			i+1, stored.RunID, stored.CreatedAt.Time().Format(time.RFC3339), stored.Artifacts)
	}
	return nil
}

func runShow(ctx context.Context, runID, outputFile string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	artifacts, err := store.ListArtifactsByRun(ctx, core.RunID(runID))
	if err != nil {
		return fmt.Errorf("failed to load artifacts for run %s: %w", runID, err)
	}
	if len(artifacts) == 0 {
		fmt.Printf("No artifacts stored for run %s.\n", runID)
		return nil
	}

	fmt.Printf("\n=== ARTIFACTS FOR RUN %s (%d) ===\n", runID, len(artifacts))
	for i, artifact := range artifacts {
		group := artifact.Group
		if group == "" {
			group = "-"
		}
		fmt.Printf("%d. %-22s group=%-20s %s\n", i+1, artifact.Kind, group, artifact.ID)
	}

	if outputFile != "" {
		jsonData, _ := json.MarshalIndent(artifacts, "", "  ")
		if err := os.WriteFile(outputFile, jsonData, 0644); err == nil {
			fmt.Printf("💾 Artifacts saved to: %s\n", outputFile)
		}
	}
	return nil
}
