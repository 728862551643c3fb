package cleanse

import (
	"context"
	"fmt"
	"log/slog"

	"banketl/internal/staging"
)

// Store is the staging surface the cleansing engine needs.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]staging.RawRecord, error)
	CommitCleansed(ctx context.Context, cleaned []staging.CleanedRecord, rejected []staging.RejectedRecord, rawIDs []int64) error
}

// Engine turns unprocessed raw rows into cleaned records, committing in
// bounded sub-batches so a crash never reprocesses committed rows and never
// loses unprocessed ones.
type Engine struct {
	store      Store
	fetchLimit int
	batchSize  int
	logger     *slog.Logger
}

// NewEngine creates a cleansing engine.
func NewEngine(store Store, fetchLimit, batchSize int, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		fetchLimit: fetchLimit,
		batchSize:  batchSize,
		logger:     logger.With(slog.String("component", "cleanse")),
	}
}

// dupKey is the in-batch duplicate identity: a record is a duplicate when
// another record in the same batch shares all three values.
type dupKey struct {
	customerID    string
	transactionID string
	date          string
}

// Run cleanses every eligible raw row and returns (cleaned, rejected) counts.
// Every fetched raw row ends processed: it either yields exactly one cleaned
// record or one rejection audit row.
func (e *Engine) Run(ctx context.Context, batchID string) (int64, int64, error) {
	raws, err := e.store.FetchUnprocessed(ctx, e.fetchLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load staging data: %w", err)
	}
	if len(raws) == 0 {
		e.logger.WarnContext(ctx, "no staging data to transform")
		return 0, 0, nil
	}

	e.logger.InfoContext(ctx, "starting cleansing",
		slog.String("batch_id", batchID),
		slog.Int("rows", len(raws)))

	seen := make(map[dupKey]bool)

	var cleanedTotal, rejectedTotal int64
	var cleaned []staging.CleanedRecord
	var rejected []staging.RejectedRecord
	var rawIDs []int64

	commit := func() error {
		if err := e.store.CommitCleansed(ctx, cleaned, rejected, rawIDs); err != nil {
			return err
		}
		cleanedTotal += int64(len(cleaned))
		rejectedTotal += int64(len(rejected))
		cleaned = cleaned[:0]
		rejected = rejected[:0]
		rawIDs = rawIDs[:0]
		return nil
	}

	for i := range raws {
		raw := &raws[i]
		rawIDs = append(rawIDs, raw.ID)

		record, reason := CleanRecord(raw)
		if record == nil {
			rejected = append(rejected, staging.RejectedRecord{
				SourceRowID: raw.ID,
				Reason:      reason,
				BatchID:     batchID,
			})
		} else {
			key := dupKey{
				customerID:    record.CustomerID,
				transactionID: record.TransactionID,
				date:          record.TransactionDate.Format("2006-01-02"),
			}
			if seen[key] {
				rejected = append(rejected, staging.RejectedRecord{
					SourceRowID: raw.ID,
					Reason:      "duplicate of earlier record in batch",
					BatchID:     batchID,
				})
			} else {
				seen[key] = true
				cleaned = append(cleaned, *record)
			}
		}

		if len(rawIDs) >= e.batchSize {
			if err := commit(); err != nil {
				return cleanedTotal, rejectedTotal, fmt.Errorf("failed to commit cleansing batch: %w", err)
			}
		}
	}
	if len(rawIDs) > 0 {
		if err := commit(); err != nil {
			return cleanedTotal, rejectedTotal, fmt.Errorf("failed to commit cleansing batch: %w", err)
		}
	}

	e.logger.InfoContext(ctx, "cleansing complete",
		slog.String("batch_id", batchID),
		slog.Int64("rows_cleaned", cleanedTotal),
		slog.Int64("rows_rejected", rejectedTotal))

	return cleanedTotal, rejectedTotal, nil
}
