package cleanse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banketl/internal/staging"
)

// fakeStagingStore serves canned raw rows and records commits.
type fakeStagingStore struct {
	raws      []staging.RawRecord
	fetchErr  error
	commitErr error

	commits   int
	cleaned   []staging.CleanedRecord
	rejected  []staging.RejectedRecord
	processed []int64
}

func (f *fakeStagingStore) FetchUnprocessed(_ context.Context, limit int) ([]staging.RawRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.raws) > limit {
		return f.raws[:limit], nil
	}
	return f.raws, nil
}

func (f *fakeStagingStore) CommitCleansed(_ context.Context, cleaned []staging.CleanedRecord, rejected []staging.RejectedRecord, rawIDs []int64) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits++
	f.cleaned = append(f.cleaned, cleaned...)
	f.rejected = append(f.rejected, rejected...)
	f.processed = append(f.processed, rawIDs...)
	return nil
}

func rawRow(id int64, customerID, transactionID, date, amount string) staging.RawRecord {
	return staging.RawRecord{
		ID:                id,
		CustomerID:        customerID,
		TransactionID:     transactionID,
		TransactionDate:   date,
		TransactionAmount: amount,
	}
}

func TestEngineRun(t *testing.T) {
	store := &fakeStagingStore{
		raws: []staging.RawRecord{
			rawRow(1, "C1", "T1", "2026-08-01", "100.00"),
			rawRow(2, "C2", "T2", "2026-08-01", "-50.00"),
			rawRow(3, "C3", "", "2026-08-02", "75.00"),
			rawRow(4, "C4", "T4", "2026-08-02", "200.00"),
		},
	}
	engine := NewEngine(store, 1000, 100, slog.Default())

	cleaned, rejected, err := engine.Run(context.Background(), "batch1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), cleaned)
	assert.Equal(t, int64(2), rejected)
	assert.Len(t, store.processed, 4)

	reasons := make([]string, 0, len(store.rejected))
	for _, r := range store.rejected {
		reasons = append(reasons, r.Reason)
		assert.Equal(t, "batch1", r.BatchID)
	}
	assert.Contains(t, reasons[0], "negative transaction_amount")
	assert.Contains(t, reasons[1], "missing transaction_id")
}

func TestEngineRunKeepsFirstOfDuplicates(t *testing.T) {
	store := &fakeStagingStore{
		raws: []staging.RawRecord{
			rawRow(1, "C1", "T1", "2026-08-01", "100.00"),
			rawRow(2, "C1", "T1", "2026-08-01", "100.00"),
			// same ids on a different date are not duplicates
			rawRow(3, "C1", "T1", "2026-08-02", "100.00"),
		},
	}
	engine := NewEngine(store, 1000, 100, slog.Default())

	cleaned, rejected, err := engine.Run(context.Background(), "batch1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), cleaned)
	assert.Equal(t, int64(1), rejected)
	require.Len(t, store.rejected, 1)
	assert.Equal(t, int64(2), store.rejected[0].SourceRowID)
	assert.Equal(t, "duplicate of earlier record in batch", store.rejected[0].Reason)

	// the first occurrence survived
	require.Len(t, store.cleaned, 2)
	assert.Equal(t, int64(1), store.cleaned[0].SourceRowID)
}

func TestEngineRunCommitsInSubBatches(t *testing.T) {
	store := &fakeStagingStore{}
	for i := int64(1); i <= 25; i++ {
		store.raws = append(store.raws,
			rawRow(i, fmt.Sprintf("C%d", i), fmt.Sprintf("T%d", i), "2026-08-01", "10.00"))
	}
	engine := NewEngine(store, 1000, 10, slog.Default())

	cleaned, rejected, err := engine.Run(context.Background(), "batch1")
	require.NoError(t, err)

	assert.Equal(t, int64(25), cleaned)
	assert.Zero(t, rejected)
	assert.Equal(t, 3, store.commits)
}

func TestEngineRunEmptyStaging(t *testing.T) {
	engine := NewEngine(&fakeStagingStore{}, 1000, 100, slog.Default())

	cleaned, rejected, err := engine.Run(context.Background(), "batch1")
	require.NoError(t, err)
	assert.Zero(t, cleaned)
	assert.Zero(t, rejected)
}

func TestEngineRunFetchError(t *testing.T) {
	engine := NewEngine(&fakeStagingStore{fetchErr: errors.New("timeout")}, 1000, 100, slog.Default())

	_, _, err := engine.Run(context.Background(), "batch1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load staging data")
}

func TestEngineRunCommitError(t *testing.T) {
	store := &fakeStagingStore{
		raws:      []staging.RawRecord{rawRow(1, "C1", "T1", "2026-08-01", "100.00")},
		commitErr: errors.New("constraint violation"),
	}
	engine := NewEngine(store, 1000, 100, slog.Default())

	cleaned, rejected, err := engine.Run(context.Background(), "batch1")
	require.Error(t, err)
	assert.Zero(t, cleaned)
	assert.Zero(t, rejected)
}
