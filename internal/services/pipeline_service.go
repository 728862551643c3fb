// Package services wires the ETL components together behind the interfaces
// the HTTP handlers consume.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"banketl/internal/cleanse"
	"banketl/internal/config"
	"banketl/internal/db"
	"banketl/internal/dimension"
	"banketl/internal/extract"
	"banketl/internal/ledger"
	"banketl/internal/loader"
	"banketl/internal/pipeline"
	"banketl/internal/quality"
	"banketl/internal/staging"
)

// ErrRunInProgress is returned when a run is requested while another run is
// still executing. The control plane allows one run at a time.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RunRequest selects what to execute. Empty BatchID and InputPath fall back
// to a generated batch ID and the configured source file.
type RunRequest struct {
	Stage     string
	BatchID   string
	InputPath string
}

// PipelineService builds and executes pipeline runs and answers queries
// about past executions.
type PipelineService struct {
	db     *db.DB
	cfg    *config.Config
	logger *slog.Logger

	ledgerStore  *ledger.Store
	qualityStore *quality.Store

	mu      sync.Mutex
	running bool
	active  *pipeline.RunState
}

// NewPipelineService creates the pipeline service.
func NewPipelineService(database *db.DB, cfg *config.Config, logger *slog.Logger) *PipelineService {
	return &PipelineService{
		db:           database,
		cfg:          cfg,
		logger:       logger,
		ledgerStore:  ledger.NewStore(database, logger),
		qualityStore: quality.NewStore(database, logger),
	}
}

// ValidStage reports whether the identifier names a runnable stage.
func ValidStage(stage string) bool {
	if stage == config.StageAll {
		return true
	}
	for _, s := range config.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// Run executes the requested stage, or the full pipeline for StageAll. Only
// one run may be active at a time.
func (s *PipelineService) Run(ctx context.Context, req RunRequest) (*pipeline.RunState, error) {
	if !ValidStage(req.Stage) {
		return nil, fmt.Errorf("unknown stage %q", req.Stage)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	batchID := req.BatchID
	if batchID == "" {
		batchID = pipeline.NewBatchID()
	}
	inputPath := req.InputPath
	if inputPath == "" {
		inputPath = s.cfg.ETL.InputPath
	}

	stages, resolver, err := s.buildStages(req.Stage, inputPath)
	if err != nil {
		return nil, err
	}
	if resolver != nil {
		if err := resolver.Warm(ctx); err != nil {
			return nil, fmt.Errorf("failed to warm dimension caches: %w", err)
		}
	}

	runner := pipeline.NewRunner(s.ledgerStore, stages, s.cfg.Server.StageTimeout, s.logger)

	state, err := runner.Run(ctx, batchID)
	s.mu.Lock()
	s.active = state
	s.mu.Unlock()
	return state, err
}

// buildStages assembles the stage sequence for one run. Components are built
// per run so dimension caches never outlive a run.
func (s *PipelineService) buildStages(selection, inputPath string) ([]pipeline.Stage, *dimension.Resolver, error) {
	ids := []string{selection}
	if selection == config.StageAll {
		ids = config.Stages
	}

	stagingStore := staging.NewStore(s.db, s.logger)

	var stages []pipeline.Stage
	var resolver *dimension.Resolver
	for _, id := range ids {
		switch id {
		case config.StageExtract:
			extractor := extract.New(inputPath, s.cfg.ETL.BatchSize, stagingStore, s.logger)
			stages = append(stages, pipeline.NewExtractStage(extractor, s.logger))

		case config.StageTransform:
			engine := cleanse.NewEngine(stagingStore, s.cfg.ETL.FetchLimit, s.cfg.ETL.BatchSize, s.logger)
			dims := dimension.NewStore(s.db, s.logger)
			stages = append(stages, pipeline.NewTransformStage(engine, dims))

		case config.StageLoad:
			dimStore := dimension.NewStore(s.db, s.logger)
			resolver = dimension.NewResolver(dimStore, s.cfg.ETL.StrictResolution, s.logger)
			facts := loader.NewStore(s.db, s.logger)
			factLoader := loader.New(stagingStore, facts, resolver, s.cfg.ETL.FetchLimit, s.logger)
			stages = append(stages, pipeline.NewLoadStage(factLoader))

		case config.StageQuality:
			assessor := quality.NewAssessor(s.qualityStore, s.cfg.Quality, s.logger)
			stages = append(stages, pipeline.NewQualityStage(assessor, s.logger))

		default:
			return nil, nil, fmt.Errorf("unknown stage %q", id)
		}
	}
	return stages, resolver, nil
}

// Active returns a snapshot of the most recent run, or nil before the first
// run.
func (s *PipelineService) Active() *pipeline.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	snap := s.active.Snapshot()
	return &snap
}

// Executions returns the ledger entries recorded for a batch.
func (s *PipelineService) Executions(ctx context.Context, batchID string) ([]ledger.Entry, error) {
	return s.ledgerStore.EntriesForBatch(ctx, batchID)
}

// RecentExecutions returns the latest ledger entries across batches.
func (s *PipelineService) RecentExecutions(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.ledgerStore.Recent(ctx, limit)
}

// QualityMetrics returns the persisted quality metrics for a batch.
func (s *PipelineService) QualityMetrics(ctx context.Context, batchID string) ([]quality.Metric, error) {
	return s.qualityStore.MetricsForBatch(ctx, batchID)
}

// Ready reports whether the warehouse is reachable with all required tables
// in place.
func (s *PipelineService) Ready(ctx context.Context) error {
	return s.db.SchemaHealthCheck(ctx)
}
