// Package pipeline orchestrates the ETL stages for one batch: extract,
// transform, load and quality, each recorded in the execution ledger.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banketl/internal/config"
	"banketl/internal/ledger"
)

// Stage is one pipeline task. Run returns the row totals the stage produced;
// an error aborts the run after the ledger entry is closed.
type Stage interface {
	ID() string
	Name() string
	Run(ctx context.Context, state *RunState) (ledger.Counts, error)
}

// Ledger records stage executions. *ledger.Store implements it.
type Ledger interface {
	Start(ctx context.Context, batchID, pipelineName, taskName string) (*ledger.Entry, error)
	Complete(ctx context.Context, entry *ledger.Entry, counts ledger.Counts, status, errMsg string) error
}

// ExecutionError wraps a stage failure with the stage that produced it.
type ExecutionError struct {
	Stage     string
	Err       error
	Retryable bool
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewBatchID generates a batch identifier with millisecond precision,
// for example 20260829_143059_042. Always UTC.
func NewBatchID() string {
	now := time.Now().UTC()
	return now.Format("20060102_150405") + fmt.Sprintf("_%03d", now.Nanosecond()/int(time.Millisecond))
}

// Runner executes a fixed sequence of stages for one batch.
type Runner struct {
	ledger       Ledger
	stages       []Stage
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewRunner creates a pipeline runner over the given stages. A zero
// stageTimeout disables the per-stage deadline.
func NewRunner(ledgerStore Ledger, stages []Stage, stageTimeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		ledger:       ledgerStore,
		stages:       stages,
		stageTimeout: stageTimeout,
		logger:       logger.With(slog.String("component", "pipeline")),
	}
}

// Run executes every stage in order. The first stage failure stops the run;
// completed stages keep their committed work, so the same batch can be
// resumed by running the remaining stages again.
func (r *Runner) Run(ctx context.Context, batchID string) (*RunState, error) {
	state := NewRunState(batchID)
	state.Start()

	r.logger.InfoContext(ctx, "pipeline run starting",
		slog.String("batch_id", batchID),
		slog.Int("stages", len(r.stages)))

	for _, stage := range r.stages {
		if err := r.runStage(ctx, stage, state); err != nil {
			state.Fail()
			r.logger.ErrorContext(ctx, "pipeline run failed",
				slog.String("batch_id", batchID),
				slog.String("stage", stage.ID()),
				slog.String("error", err.Error()))
			return state, err
		}
	}

	state.Complete()
	r.logger.InfoContext(ctx, "pipeline run complete",
		slog.String("batch_id", batchID),
		slog.Int64("rows_extracted", state.Counts.Extracted),
		slog.Int64("rows_transformed", state.Counts.Transformed),
		slog.Int64("rows_loaded", state.Counts.Loaded),
		slog.Int64("rows_rejected", state.Counts.Rejected),
		slog.Bool("quality_passed", state.QualityPassed))
	return state, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, state *RunState) error {
	stageState := NewStageState(stage.ID(), stage.Name())
	state.AddStage(stageState)

	entry, err := r.ledger.Start(ctx, state.BatchID, config.PipelineName, stage.ID())
	if err != nil {
		stageState.Fail(err)
		return &ExecutionError{Stage: stage.ID(), Err: err, Retryable: true}
	}

	stageCtx := ctx
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	stageState.Start()
	r.logger.InfoContext(ctx, "stage starting",
		slog.String("batch_id", state.BatchID),
		slog.String("stage", stage.ID()))

	counts, runErr := stage.Run(stageCtx, state)
	if runErr != nil {
		stageState.Fail(runErr)
		if err := r.ledger.Complete(ctx, entry, counts, ledger.StatusFailed, runErr.Error()); err != nil {
			r.logger.ErrorContext(ctx, "failed to record stage failure",
				slog.String("stage", stage.ID()),
				slog.String("error", err.Error()))
		}
		return &ExecutionError{Stage: stage.ID(), Err: runErr, Retryable: stageCtx.Err() != nil}
	}

	state.AddCounts(counts)
	stageState.Complete()
	if err := r.ledger.Complete(ctx, entry, counts, ledger.StatusSuccess, ""); err != nil {
		return &ExecutionError{Stage: stage.ID(), Err: err, Retryable: true}
	}

	r.logger.InfoContext(ctx, "stage complete",
		slog.String("batch_id", state.BatchID),
		slog.String("stage", stage.ID()),
		slog.Duration("duration", stageState.Duration()))
	return nil
}
