package main

import (
	"context"
	"log"
	"os"

	"escapemap/adapters/filestore"
	"escapemap/adapters/postgres"
	"escapemap/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Backfills filesystem-stored artifacts into PostgreSQL, for installs that
// add a database after runs have accumulated under OUTPUT_DIR. Artifacts
// that already exist in the database are skipped with a log line.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <database_url> <results_dir>")
	}

	databaseURL := os.Args[1]
	resultsDir := os.Args[2]

	log.Printf("Starting migration from %s to database", resultsDir)

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	source := filestore.NewStore(resultsDir)
	target := postgres.NewResultStore(db)

	runs, err := source.ListRuns(ctx, 0)
	if err != nil {
		log.Fatalf("Failed to list stored runs: %v", err)
	}
	log.Printf("Found %d runs to migrate", len(runs))

	migrated := 0
	skipped := 0

	for _, stored := range runs {
		artifacts, err := source.ListArtifactsByRun(ctx, stored.RunID)
		if err != nil {
			log.Printf("Failed to read run %s: %v", stored.RunID, err)
			skipped++
			continue
		}

		for _, artifact := range artifacts {
			if err := target.SaveArtifact(ctx, stored.RunID, artifact); err != nil {
				log.Printf("Failed to save artifact %s from run %s: %v", artifact.ID, stored.RunID, err)
				skipped++
				continue
			}
			migrated++
		}
		log.Printf("Migrated run %s (%d artifacts)", stored.RunID, len(artifacts))
	}

	log.Printf("Migration complete: %d artifacts migrated, %d skipped", migrated, skipped)
}
