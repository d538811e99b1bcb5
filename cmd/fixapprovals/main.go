// Command fixapprovals scans for pending approval instances whose document
// is missing or still in draft — leftovers of a partial failure between
// instance creation and the document status update — and deletes them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/limspace/be-lims-approvals/internal/config"
	"github.com/limspace/be-lims-approvals/internal/database"
	"github.com/limspace/be-lims-approvals/internal/logger"
	"github.com/limspace/be-lims-approvals/internal/repository"
	"github.com/limspace/be-lims-approvals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name + "-fixapprovals",
		Version:     cfg.Service.Version,
	})

	ctx := context.Background()

	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: 2,
		MinConns: 1,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	reconciler := service.NewReconciler(
		repository.NewInstanceRepository(db),
		repository.NewDocumentRepository(db),
		log,
	)

	fixed, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	log.Info().Int("fixed", fixed).Msg("Done")
}
