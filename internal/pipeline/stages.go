package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"banketl/internal/config"
	"banketl/internal/extract"
	"banketl/internal/ledger"
	"banketl/internal/loader"
	"banketl/internal/quality"
)

// RawExtractor pulls source rows into staging. *extract.Extractor implements it.
type RawExtractor interface {
	Run(ctx context.Context) (int64, int64, *extract.Metadata, error)
}

// CleansingEngine cleans staged rows. *cleanse.Engine implements it.
type CleansingEngine interface {
	Run(ctx context.Context, batchID string) (int64, int64, error)
}

// DimensionPopulator upserts dimension rows from cleaned staging data.
// *dimension.Store implements it.
type DimensionPopulator interface {
	PopulateFromCleaned(ctx context.Context) error
}

// FactLoader moves cleaned rows into the fact table. *loader.Loader
// implements it.
type FactLoader interface {
	Run(ctx context.Context, batchID string) (loader.Result, error)
}

// QualityRunner assesses one table for a batch. *quality.Assessor
// implements it.
type QualityRunner interface {
	Run(ctx context.Context, batchID, table string) (bool, []quality.Metric, error)
}

// ExtractStage stages source file rows into the raw staging table.
type ExtractStage struct {
	extractor RawExtractor
	logger    *slog.Logger
}

// NewExtractStage creates the extract stage.
func NewExtractStage(extractor RawExtractor, logger *slog.Logger) *ExtractStage {
	return &ExtractStage{extractor: extractor, logger: logger}
}

func (s *ExtractStage) ID() string   { return config.StageExtract }
func (s *ExtractStage) Name() string { return "Extract source data" }

func (s *ExtractStage) Run(ctx context.Context, state *RunState) (ledger.Counts, error) {
	extracted, staged, meta, err := s.extractor.Run(ctx)
	if err != nil {
		return ledger.Counts{Extracted: staged}, err
	}
	s.logger.InfoContext(ctx, "source file staged",
		slog.String("batch_id", state.BatchID),
		slog.String("file", meta.SourceFile),
		slog.Int64("rows_read", extracted),
		slog.Int64("rows_staged", staged))
	return ledger.Counts{Extracted: staged}, nil
}

// TransformStage cleans staged rows and refreshes the dimensions from them.
type TransformStage struct {
	engine CleansingEngine
	dims   DimensionPopulator
}

// NewTransformStage creates the transform stage.
func NewTransformStage(engine CleansingEngine, dims DimensionPopulator) *TransformStage {
	return &TransformStage{engine: engine, dims: dims}
}

func (s *TransformStage) ID() string   { return config.StageTransform }
func (s *TransformStage) Name() string { return "Cleanse and conform" }

func (s *TransformStage) Run(ctx context.Context, state *RunState) (ledger.Counts, error) {
	cleaned, rejected, err := s.engine.Run(ctx, state.BatchID)
	counts := ledger.Counts{Transformed: cleaned, Rejected: rejected}
	if err != nil {
		return counts, err
	}
	if err := s.dims.PopulateFromCleaned(ctx); err != nil {
		return counts, fmt.Errorf("dimension refresh failed: %w", err)
	}
	return counts, nil
}

// LoadStage inserts fact rows for cleaned records.
type LoadStage struct {
	loader FactLoader
}

// NewLoadStage creates the load stage.
func NewLoadStage(factLoader FactLoader) *LoadStage {
	return &LoadStage{loader: factLoader}
}

func (s *LoadStage) ID() string   { return config.StageLoad }
func (s *LoadStage) Name() string { return "Load fact table" }

func (s *LoadStage) Run(ctx context.Context, state *RunState) (ledger.Counts, error) {
	res, err := s.loader.Run(ctx, state.BatchID)
	counts := ledger.Counts{Loaded: res.Loaded, Rejected: res.Failed}
	return counts, err
}

// qualityTables are assessed in order by the quality stage.
var qualityTables = []string{"cleaned_banking_data", "fact_transactions"}

// QualityStage scores the batch. Failing checks do not fail the stage: the
// metrics are persisted and the verdict lands on the run state for callers
// to act on.
type QualityStage struct {
	assessor QualityRunner
	logger   *slog.Logger
}

// NewQualityStage creates the quality stage.
func NewQualityStage(assessor QualityRunner, logger *slog.Logger) *QualityStage {
	return &QualityStage{assessor: assessor, logger: logger}
}

func (s *QualityStage) ID() string   { return config.StageQuality }
func (s *QualityStage) Name() string { return "Assess data quality" }

func (s *QualityStage) Run(ctx context.Context, state *RunState) (ledger.Counts, error) {
	passed := true
	for _, table := range qualityTables {
		ok, metrics, err := s.assessor.Run(ctx, state.BatchID, table)
		if err != nil {
			return ledger.Counts{}, err
		}
		if !ok {
			passed = false
			for _, m := range metrics {
				if m.Status == quality.StatusPass {
					continue
				}
				s.logger.WarnContext(ctx, "quality check below threshold",
					slog.String("batch_id", state.BatchID),
					slog.String("table", m.Table),
					slog.String("metric", m.Name),
					slog.String("status", string(m.Status)),
					slog.Float64("value", m.Value))
			}
		}
	}
	state.SetQualityPassed(passed)
	return ledger.Counts{}, nil
}
