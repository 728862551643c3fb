// Command etl runs the banking ETL pipeline from the command line: a single
// stage or the full extract-transform-load-quality sequence for one batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"banketl/internal/config"
	"banketl/internal/db"
	"banketl/internal/infrastructure"
	"banketl/internal/pipeline"
	"banketl/internal/services"
)

func main() {
	os.Exit(realMain())
}

// realMain carries the exit code back to main so deferred cleanup runs
// before the process exits.
func realMain() int {
	stage := flag.String("stage", config.StageAll, "pipeline stage to run: extract | transform | load | quality | all")
	batch := flag.String("batch", "", "batch identifier (defaults to a generated one)")
	input := flag.String("input", "", "source file path (defaults to the configured input)")
	configFile := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if !services.ValidStage(*stage) {
		fmt.Fprintf(os.Stderr, "unknown stage %q: must be one of extract, transform, load, quality, all\n", *stage)
		return 1
	}

	cfg, err := config.LoadFrom(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := run(ctx, cfg, logger, *stage, *batch, *input)
	if err != nil {
		logger.Error("pipeline run failed", slog.String("error", err.Error()))
		return 1
	}

	printSummary(*snap)

	code := exitCode(*stage, *snap)
	if code != 0 {
		logger.Warn("batch completed with quality below thresholds",
			slog.String("batch_id", snap.BatchID))
	}
	return code
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, stage, batch, input string) (*pipeline.RunSnapshot, error) {
	database, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize warehouse schema: %w", err)
	}

	service := services.NewPipelineService(database, cfg, logger)

	state, err := service.Run(ctx, services.RunRequest{
		Stage:     stage,
		BatchID:   batch,
		InputPath: input,
	})
	if err != nil {
		return nil, err
	}

	snap := state.Snapshot()
	return &snap, nil
}

// exitCode maps the quality verdict to the process exit code: 2 when the
// run assessed quality and the batch fell below thresholds, 0 otherwise.
func exitCode(stage string, snap pipeline.RunSnapshot) int {
	if (stage == config.StageAll || stage == config.StageQuality) && !snap.QualityPassed {
		return 2
	}
	return 0
}

func printSummary(snap pipeline.RunSnapshot) {
	fmt.Printf("batch %s: %s\n", snap.BatchID, snap.Status)
	for _, s := range snap.Stages {
		fmt.Printf("  %-10s %s\n", s.ID, s.Status)
	}
	fmt.Printf("  extracted=%d transformed=%d loaded=%d rejected=%d quality_passed=%t\n",
		snap.Counts.Extracted, snap.Counts.Transformed, snap.Counts.Loaded,
		snap.Counts.Rejected, snap.QualityPassed)
}
