package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banketl/internal/db"
)

// FactRecord is one fact-table row ready for insertion.
type FactRecord struct {
	CustomerKey       int
	ProductKey        int
	TimeKey           int
	BranchKey         *int
	TransactionID     string
	AccountID         string
	TransactionAmount float64
	TransactionType   *string
	AccountType       *string
	AccountStatus     *string
	TransactionDate   time.Time
	DataQualityScore  float64
	BatchID           string
}

// Store writes fact rows and flips staging load flags.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates a fact store.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With(slog.String("component", "fact_store")),
	}
}

const insertFactSQL = `
	INSERT INTO banking_dw.fact_transactions (
		customer_key, product_key, time_key, branch_key,
		transaction_id, account_id, transaction_amount, transaction_type,
		account_type, account_status, transaction_date,
		is_duplicate, data_quality_score, etl_batch_id
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13
	)
	ON CONFLICT (transaction_id) DO NOTHING`

const flagDuplicateSQL = `
	UPDATE banking_dw.fact_transactions
	SET is_duplicate = TRUE
	WHERE transaction_id = $1`

const markLoadedSQL = `
	UPDATE staging.cleaned_banking_data
	SET is_loaded = TRUE, loaded_at = CURRENT_TIMESTAMP
	WHERE id = $1`

// LoadOne inserts a fact row and marks its cleaned record loaded in the same
// transaction. If the transaction identifier already exists in the fact
// table, no second row is inserted; the existing row is flagged as having
// seen a duplicate and inserted=false is returned. Either way the cleaned
// record reaches its terminal state exactly once.
func (s *Store) LoadOne(ctx context.Context, fact *FactRecord, cleanedID int64) (bool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insertFactSQL,
		fact.CustomerKey, fact.ProductKey, fact.TimeKey, fact.BranchKey,
		fact.TransactionID, fact.AccountID, fact.TransactionAmount, fact.TransactionType,
		fact.AccountType, fact.AccountStatus, fact.TransactionDate,
		fact.DataQualityScore, fact.BatchID)
	if err != nil {
		return false, fmt.Errorf("failed to insert fact row %s: %w", fact.TransactionID, err)
	}

	inserted := tag.RowsAffected() > 0
	if !inserted {
		if _, err := tx.Exec(ctx, flagDuplicateSQL, fact.TransactionID); err != nil {
			return false, fmt.Errorf("failed to flag duplicate fact %s: %w", fact.TransactionID, err)
		}
	}

	if _, err := tx.Exec(ctx, markLoadedSQL, cleanedID); err != nil {
		return false, fmt.Errorf("failed to mark cleaned row %d loaded: %w", cleanedID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit load transaction: %w", err)
	}
	return inserted, nil
}
