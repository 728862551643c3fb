package quality

import (
	"context"
	"fmt"
	"log/slog"

	"banketl/internal/config"
)

// Source provides the statistics the assessor computes metrics from.
// *Store implements it against the warehouse.
type Source interface {
	CompletenessStats(ctx context.Context, table string) (total, complete int64, err error)
	NullStats(ctx context.Context, table string) (total int64, nulls map[string]int64, err error)
	DuplicateStats(ctx context.Context, table string) (total, duplicated int64, err error)
	SentinelStats(ctx context.Context, batchID string) (total, fallbacks int64, err error)
	InsertMetrics(ctx context.Context, batchID string, metrics []Metric) error
}

// Assessor runs the data-quality checks for one batch and table. Check
// results are independent: a failing check never blocks the load that
// already happened, it surfaces for operational review.
type Assessor struct {
	source Source
	cfg    config.QualityConfig
	logger *slog.Logger
}

// NewAssessor creates a quality assessor.
func NewAssessor(source Source, cfg config.QualityConfig, logger *slog.Logger) *Assessor {
	return &Assessor{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "quality")),
	}
}

// Run computes and persists every applicable quality metric for the table.
// Returns true only when every check passed outright.
func (a *Assessor) Run(ctx context.Context, batchID, table string) (bool, []Metric, error) {
	spec, ok := tableSpecs[table]
	if !ok {
		return false, nil, fmt.Errorf("unknown quality table %q", table)
	}

	a.logger.InfoContext(ctx, "starting quality checks",
		slog.String("batch_id", batchID),
		slog.String("table", table))

	var metrics []Metric

	completeness, err := a.checkCompleteness(ctx, table)
	if err != nil {
		return false, nil, err
	}
	metrics = append(metrics, completeness)

	nullRate, err := a.checkNullRate(ctx, table)
	if err != nil {
		return false, nil, err
	}
	metrics = append(metrics, nullRate)

	duplicates, err := a.checkDuplicates(ctx, table)
	if err != nil {
		return false, nil, err
	}
	metrics = append(metrics, duplicates)

	if spec.hasDimensionFKs {
		integrity, err := a.checkReferentialIntegrity(ctx, batchID)
		if err != nil {
			return false, nil, err
		}
		metrics = append(metrics, integrity)
	}

	if err := a.source.InsertMetrics(ctx, batchID, metrics); err != nil {
		return false, metrics, err
	}

	overall := StatusPass
	for _, m := range metrics {
		overall = worse(overall, m.Status)
	}

	a.logger.InfoContext(ctx, "quality checks complete",
		slog.String("batch_id", batchID),
		slog.String("table", table),
		slog.String("status", string(overall)))

	return overall == StatusPass, metrics, nil
}

// checkCompleteness measures the fraction of rows whose mandatory fields are
// all non-null, against the configured threshold.
func (a *Assessor) checkCompleteness(ctx context.Context, table string) (Metric, error) {
	total, complete, err := a.source.CompletenessStats(ctx, table)
	if err != nil {
		return Metric{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = float64(complete) / float64(total) * 100
	}

	status := StatusFail
	if pct >= a.cfg.MinCompletenessPct {
		status = StatusPass
	}

	return Metric{
		Table:       table,
		Name:        MetricCompleteness,
		Value:       pct,
		Percentage:  pct,
		RecordCount: total,
		Status:      status,
		Description: fmt.Sprintf("%d of %d records complete (threshold %.1f%%)", complete, total, a.cfg.MinCompletenessPct),
	}, nil
}

// checkNullRate measures the average null fraction across the table's
// optional columns.
func (a *Assessor) checkNullRate(ctx context.Context, table string) (Metric, error) {
	total, nulls, err := a.source.NullStats(ctx, table)
	if err != nil {
		return Metric{}, err
	}

	avgPct := 0.0
	if len(nulls) > 0 {
		var sum float64
		for _, count := range nulls {
			if total > 0 {
				sum += float64(count) / float64(total) * 100
			} else {
				sum += 100
			}
		}
		avgPct = sum / float64(len(nulls))
	}

	status := StatusFail
	if avgPct <= a.cfg.MaxNullPct {
		status = StatusPass
	}

	return Metric{
		Table:       table,
		Name:        MetricNullPercentage,
		Value:       avgPct,
		Percentage:  avgPct,
		RecordCount: total,
		Status:      status,
		Description: fmt.Sprintf("average null rate across %d optional columns (max %.1f%%)", len(nulls), a.cfg.MaxNullPct),
	}, nil
}

// checkDuplicates counts rows sharing their duplicate identity. Duplicates
// downgrade the batch to WARNING, not FAIL: the loader already guarantees no
// duplicate fact rows, this surfaces upstream noise.
func (a *Assessor) checkDuplicates(ctx context.Context, table string) (Metric, error) {
	total, duplicated, err := a.source.DuplicateStats(ctx, table)
	if err != nil {
		return Metric{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = float64(duplicated) / float64(total) * 100
	}

	status := StatusPass
	if duplicated > 0 {
		status = StatusWarning
	}

	return Metric{
		Table:       table,
		Name:        MetricDuplicates,
		Value:       float64(duplicated),
		Percentage:  pct,
		RecordCount: total,
		Status:      status,
		Description: fmt.Sprintf("%d records share a duplicate identity", duplicated),
	}, nil
}

// checkReferentialIntegrity counts fact rows that fell back to the sentinel
// dimension key, a proxy for unresolved natural keys.
func (a *Assessor) checkReferentialIntegrity(ctx context.Context, batchID string) (Metric, error) {
	total, fallbacks, err := a.source.SentinelStats(ctx, batchID)
	if err != nil {
		return Metric{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = float64(fallbacks) / float64(total) * 100
	}

	status := StatusPass
	if fallbacks > 0 {
		status = StatusWarning
	}

	return Metric{
		Table:       "fact_transactions",
		Name:        MetricReferentialIntegrity,
		Value:       float64(fallbacks),
		Percentage:  pct,
		RecordCount: total,
		Status:      status,
		Description: fmt.Sprintf("%d fact rows reference the sentinel dimension key", fallbacks),
	}, nil
}
