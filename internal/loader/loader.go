package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banketl/internal/dimension"
	"banketl/internal/staging"
)

// CleanedReader is the staging surface the loader needs.
type CleanedReader interface {
	FetchUnloaded(ctx context.Context, limit int) ([]staging.CleanedRecord, error)
}

// FactWriter persists one fact row plus the staging flag flip atomically.
// *Store implements it.
type FactWriter interface {
	LoadOne(ctx context.Context, fact *FactRecord, cleanedID int64) (bool, error)
}

// KeyResolver resolves natural keys to dimension surrogate keys.
// *dimension.Resolver implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, dim dimension.Dimension, naturalKey string) (int, error)
	ResolveTime(ctx context.Context, date time.Time) (int, error)
}

// Result reports the outcome of one load run.
type Result struct {
	Loaded     int64
	Failed     int64
	Duplicates int64
}

// Loader resolves dimension keys for cleaned records and inserts fact rows.
type Loader struct {
	cleaned    CleanedReader
	facts      FactWriter
	resolver   KeyResolver
	fetchLimit int
	logger     *slog.Logger
}

// New creates a dimensional loader. The resolver (and its caches) must be
// owned by this loader instance alone.
func New(cleaned CleanedReader, facts FactWriter, resolver KeyResolver, fetchLimit int, logger *slog.Logger) *Loader {
	return &Loader{
		cleaned:    cleaned,
		facts:      facts,
		resolver:   resolver,
		fetchLimit: fetchLimit,
		logger:     logger.With(slog.String("component", "loader")),
	}
}

// Run loads every unloaded cleaned record into the fact table. Each record is
// committed individually, so an abort mid-run leaves committed work standing
// and a restart picks up only the remainder.
func (l *Loader) Run(ctx context.Context, batchID string) (Result, error) {
	var res Result

	records, err := l.cleaned.FetchUnloaded(ctx, l.fetchLimit)
	if err != nil {
		return res, fmt.Errorf("failed to fetch unloaded records: %w", err)
	}
	if len(records) == 0 {
		l.logger.InfoContext(ctx, "no cleaned records to load")
		return res, nil
	}

	l.logger.InfoContext(ctx, "starting fact load",
		slog.String("batch_id", batchID),
		slog.Int("records", len(records)))

	for i := range records {
		record := &records[i]

		fact, err := l.buildFact(ctx, record, batchID)
		if err != nil {
			res.Failed++
			l.logger.ErrorContext(ctx, "failed to resolve dimensions for record",
				slog.String("transaction_id", record.TransactionID),
				slog.String("error", err.Error()))
			continue
		}

		inserted, err := l.facts.LoadOne(ctx, fact, record.ID)
		if err != nil {
			return res, fmt.Errorf("fact load failed at transaction %s: %w", record.TransactionID, err)
		}
		if inserted {
			res.Loaded++
		} else {
			res.Duplicates++
		}
	}

	l.logger.InfoContext(ctx, "fact load complete",
		slog.String("batch_id", batchID),
		slog.Int64("rows_loaded", res.Loaded),
		slog.Int64("duplicates", res.Duplicates),
		slog.Int64("failed", res.Failed))

	return res, nil
}

// buildFact resolves the four dimension keys for a cleaned record. Customer,
// product and time are mandatory and fall back to the sentinel; branch is
// optional and stays null when the record carries no branch.
func (l *Loader) buildFact(ctx context.Context, record *staging.CleanedRecord, batchID string) (*FactRecord, error) {
	customerKey, err := l.resolver.Resolve(ctx, dimension.Customer, record.CustomerID)
	if err != nil {
		return nil, err
	}

	productKey, err := l.resolver.Resolve(ctx, dimension.Product, deref(record.ProductType))
	if err != nil {
		return nil, err
	}

	timeKey, err := l.resolver.ResolveTime(ctx, record.TransactionDate)
	if err != nil {
		return nil, err
	}

	var branchKey *int
	if record.BranchID != nil {
		key, err := l.resolver.Resolve(ctx, dimension.Branch, *record.BranchID)
		if err != nil {
			return nil, err
		}
		branchKey = &key
	}

	return &FactRecord{
		CustomerKey:       customerKey,
		ProductKey:        productKey,
		TimeKey:           timeKey,
		BranchKey:         branchKey,
		TransactionID:     record.TransactionID,
		AccountID:         record.CustomerID,
		TransactionAmount: record.TransactionAmount,
		TransactionType:   record.TransactionType,
		AccountType:       record.AccountType,
		AccountStatus:     record.AccountStatus,
		TransactionDate:   record.TransactionDate,
		DataQualityScore:  QualityScore(record),
		BatchID:           batchID,
	}, nil
}

// scoredFields is the denominator for the per-record quality score.
const scoredFields = 13

// QualityScore is the fraction of populated fields in a cleaned record.
// Mandatory fields are always populated, so the score floor is set by them.
func QualityScore(record *staging.CleanedRecord) float64 {
	populated := 4 // customer_id, transaction_id, transaction_date, transaction_amount
	for _, present := range []bool{
		record.ProductType != nil,
		record.TransactionType != nil,
		record.AccountType != nil,
		record.AccountStatus != nil,
		record.CustomerName != nil,
		record.CustomerEmail != nil,
		record.CustomerPhone != nil,
		record.CustomerAge != nil,
		record.CustomerSegment != nil,
	} {
		if present {
			populated++
		}
	}
	return float64(populated) / float64(scoredFields)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
