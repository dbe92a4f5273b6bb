package main

import (
	"context"
	"log"
	"os"

	"escapemap/adapters/filestore"
	"escapemap/adapters/postgres"
	"escapemap/adapters/tabular"
	"escapemap/app"
	"escapemap/domain/escape"
	"escapemap/internal"
	"escapemap/internal/config"
	"escapemap/internal/errors"
	"escapemap/internal/migration"
	"escapemap/internal/report"
	"escapemap/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase initializes the PostgreSQL database connection
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	// Run migrations
	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

// main runs the configured study once and exits nonzero if any group failed.
// Use cmd/cli for the interactive command surface.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewDefaultLogger()

	if appConfig.Paths.StudyFile == "" {
		log.Fatal("STUDY_CONFIG is required")
	}
	study, err := config.LoadStudy(appConfig.Paths.StudyFile)
	if err != nil {
		log.Fatalf("Failed to load study: %v", err)
	}

	if appConfig.Paths.DataFile == "" {
		log.Fatal("DATA_FILE is required")
	}
	aggregation, err := escape.ParseAggregation(study.Metric.Aggregation)
	if err != nil {
		log.Fatalf("Invalid aggregation: %v", err)
	}
	source := tabular.NewReader(appConfig.Paths.DataFile, tabular.Columns{
		Condition: study.Metric.ConditionColumn,
		Site:      study.Metric.SiteColumn,
		Value:     study.Metric.ValueColumn,
		Mutation:  study.Metric.MutationColumn,
	}, aggregation)

	var frequencies ports.FrequencySource
	if study.Frequencies != "" {
		frequencies = tabular.NewFrequencyReader(study.Frequencies)
	}

	// Pick the result store: Postgres when configured, filesystem otherwise
	var store ports.ResultStore
	if appConfig.HasDatabase() {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer db.Close()
		store = postgres.NewResultStore(db)
	} else {
		log.Printf("No DATABASE_URL configured, storing artifacts under %s", appConfig.Paths.OutputDir)
		store = filestore.NewStore(appConfig.Paths.OutputDir)
	}

	service := app.NewAnalysisService(
		source,
		frequencies,
		store,
		report.NewWriter(appConfig.Paths.OutputDir),
		logger,
		appConfig.Run.MaxParallelGroups,
		internal.Version,
	)

	result, err := service.RunAnalysis(context.Background(), app.RunRequest{Study: study})
	if err != nil {
		log.Fatalf("Analysis run failed: %v", err)
	}

	log.Printf("Run %s finished in %dms: %d groups completed, %d failed",
		result.RunID, result.RuntimeMs,
		result.Manifest.CompletedCount(), result.Manifest.FailedCount())
	for _, group := range result.Manifest.Groups {
		if group.Error != "" {
			log.Printf("  group %q failed: %s", group.Group, group.Error)
		}
	}

	if !result.Success {
		os.Exit(1)
	}
}
