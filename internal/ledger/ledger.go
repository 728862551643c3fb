// Package ledger records pipeline executions in the audit schema. One row
// exists per batch and task; the row is created when the task starts and
// mutated in place when it reaches a terminal state.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banketl/internal/db"
)

// Execution states. RUNNING is transitional; the other two are terminal.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Entry is one execution-log row.
type Entry struct {
	ID              int64      `json:"id"`
	BatchID         string     `json:"etl_batch_id"`
	PipelineName    string     `json:"pipeline_name"`
	TaskName        string     `json:"task_name"`
	ExecutionStart  time.Time  `json:"execution_start"`
	ExecutionEnd    *time.Time `json:"execution_end,omitempty"`
	RowsExtracted   int64      `json:"rows_extracted"`
	RowsTransformed int64      `json:"rows_transformed"`
	RowsLoaded      int64      `json:"rows_loaded"`
	RowsRejected    int64      `json:"rows_rejected"`
	Status          string     `json:"execution_status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// Counts carries the row totals a finished task reports.
type Counts struct {
	Extracted   int64 `json:"rows_extracted"`
	Transformed int64 `json:"rows_transformed"`
	Loaded      int64 `json:"rows_loaded"`
	Rejected    int64 `json:"rows_rejected"`
}

// Store persists execution-log entries.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates an execution ledger store.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

const startEntrySQL = `
	INSERT INTO audit.etl_execution_log
		(etl_batch_id, pipeline_name, task_name, execution_start, execution_status)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (etl_batch_id, task_name) DO UPDATE
	SET execution_start  = EXCLUDED.execution_start,
	    execution_status = EXCLUDED.execution_status,
	    execution_end    = NULL,
	    error_message    = NULL
	RETURNING id`

// Start opens a RUNNING entry for a task. Rerunning the same batch and task
// resets the existing row instead of adding a second one.
func (s *Store) Start(ctx context.Context, batchID, pipelineName, taskName string) (*Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	entry := &Entry{
		BatchID:        batchID,
		PipelineName:   pipelineName,
		TaskName:       taskName,
		ExecutionStart: time.Now().UTC(),
		Status:         StatusRunning,
	}

	err := s.db.Pool.QueryRow(ctx, startEntrySQL,
		entry.BatchID, entry.PipelineName, entry.TaskName,
		entry.ExecutionStart, entry.Status,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger entry for %s/%s: %w", batchID, taskName, err)
	}

	s.logger.InfoContext(ctx, "ledger entry opened",
		slog.String("batch_id", batchID),
		slog.String("task", taskName))
	return entry, nil
}

const completeEntrySQL = `
	UPDATE audit.etl_execution_log
	SET execution_end    = $1,
	    rows_extracted   = $2,
	    rows_transformed = $3,
	    rows_loaded      = $4,
	    rows_rejected    = $5,
	    execution_status = $6,
	    error_message    = $7
	WHERE id = $8`

// Complete moves an entry to its terminal state. errMsg is stored only when
// the status is FAILED.
func (s *Store) Complete(ctx context.Context, entry *Entry, counts Counts, status, errMsg string) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	end := time.Now().UTC()
	entry.ExecutionEnd = &end
	entry.RowsExtracted = counts.Extracted
	entry.RowsTransformed = counts.Transformed
	entry.RowsLoaded = counts.Loaded
	entry.RowsRejected = counts.Rejected
	entry.Status = status
	entry.ErrorMessage = nil
	if status == StatusFailed && errMsg != "" {
		entry.ErrorMessage = &errMsg
	}

	if _, err := s.db.Pool.Exec(ctx, completeEntrySQL,
		entry.ExecutionEnd, entry.RowsExtracted, entry.RowsTransformed,
		entry.RowsLoaded, entry.RowsRejected, entry.Status, entry.ErrorMessage,
		entry.ID,
	); err != nil {
		return fmt.Errorf("failed to close ledger entry %d: %w", entry.ID, err)
	}

	s.logger.InfoContext(ctx, "ledger entry closed",
		slog.String("batch_id", entry.BatchID),
		slog.String("task", entry.TaskName),
		slog.String("status", status),
		slog.Duration("duration", end.Sub(entry.ExecutionStart)))
	return nil
}

const entriesForBatchSQL = `
	SELECT id, etl_batch_id, pipeline_name, task_name, execution_start,
	       execution_end, rows_extracted, rows_transformed, rows_loaded,
	       rows_rejected, execution_status, error_message
	FROM audit.etl_execution_log
	WHERE etl_batch_id = $1
	ORDER BY execution_start, id`

// EntriesForBatch returns every execution entry recorded for a batch.
func (s *Store) EntriesForBatch(ctx context.Context, batchID string) ([]Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, entriesForBatchSQL, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.PipelineName, &e.TaskName,
			&e.ExecutionStart, &e.ExecutionEnd, &e.RowsExtracted,
			&e.RowsTransformed, &e.RowsLoaded, &e.RowsRejected,
			&e.Status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const recentEntriesSQL = `
	SELECT id, etl_batch_id, pipeline_name, task_name, execution_start,
	       execution_end, rows_extracted, rows_transformed, rows_loaded,
	       rows_rejected, execution_status, error_message
	FROM audit.etl_execution_log
	ORDER BY execution_start DESC, id DESC
	LIMIT $1`

// Recent returns the latest execution entries across all batches.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, recentEntriesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.PipelineName, &e.TaskName,
			&e.ExecutionStart, &e.ExecutionEnd, &e.RowsExtracted,
			&e.RowsTransformed, &e.RowsLoaded, &e.RowsRejected,
			&e.Status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
