package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"banketl/internal/db"
)

// Store persists raw and cleaned records in the staging schema.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates a staging store.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With(slog.String("component", "staging_store")),
	}
}

const insertRawSQL = `
	INSERT INTO staging.raw_banking_data (
		customer_id, transaction_id, transaction_date, product_type,
		transaction_amount, transaction_type, account_type, account_status,
		customer_name, customer_email, customer_phone, customer_age,
		customer_segment, branch_id, branch_location,
		raw_data, source_file_name, source_file_hash, is_processed
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, FALSE
	)`

// InsertRaw writes extracted rows verbatim into the staging area, tagged with
// provenance. Returns the number of rows written.
func (s *Store) InsertRaw(ctx context.Context, records []RawRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for i := range records {
		r := &records[i]
		rawData, err := json.Marshal(r.Fields())
		if err != nil {
			return 0, fmt.Errorf("failed to encode raw row: %w", err)
		}
		batch.Queue(insertRawSQL,
			nullable(r.CustomerID), nullable(r.TransactionID), nullable(r.TransactionDate),
			nullable(r.ProductType), nullable(r.TransactionAmount), nullable(r.TransactionType),
			nullable(r.AccountType), nullable(r.AccountStatus), nullable(r.CustomerName),
			nullable(r.CustomerEmail), nullable(r.CustomerPhone), nullable(r.CustomerAge),
			nullable(r.CustomerSegment), nullable(r.BranchID), nullable(r.BranchLocation),
			rawData, r.SourceFileName, r.SourceFileHash)
	}

	results := s.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert raw row: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	s.logger.Debug("raw rows staged", slog.Int64("count", inserted))
	return inserted, nil
}

const fetchUnprocessedSQL = `
	SELECT
		id, COALESCE(customer_id, ''), COALESCE(transaction_id, ''),
		COALESCE(transaction_date, ''), COALESCE(product_type, ''),
		COALESCE(transaction_amount, ''), COALESCE(transaction_type, ''),
		COALESCE(account_type, ''), COALESCE(account_status, ''),
		COALESCE(customer_name, ''), COALESCE(customer_email, ''),
		COALESCE(customer_phone, ''), COALESCE(customer_age, ''),
		COALESCE(customer_segment, ''), COALESCE(branch_id, ''),
		COALESCE(branch_location, ''), source_file_name, source_file_hash
	FROM staging.raw_banking_data
	WHERE is_processed = FALSE
	ORDER BY id
	LIMIT $1`

// FetchUnprocessed returns raw rows not yet consumed by the cleansing engine,
// oldest first. Any row with is_processed = false is eligible regardless of
// how old its batch is.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]RawRecord, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, fetchUnprocessedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unprocessed rows: %w", err)
	}
	defer rows.Close()

	var records []RawRecord
	for rows.Next() {
		var r RawRecord
		if err := rows.Scan(
			&r.ID, &r.CustomerID, &r.TransactionID, &r.TransactionDate,
			&r.ProductType, &r.TransactionAmount, &r.TransactionType,
			&r.AccountType, &r.AccountStatus, &r.CustomerName,
			&r.CustomerEmail, &r.CustomerPhone, &r.CustomerAge,
			&r.CustomerSegment, &r.BranchID, &r.BranchLocation,
			&r.SourceFileName, &r.SourceFileHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

const insertCleanedSQL = `
	INSERT INTO staging.cleaned_banking_data (
		source_row_id, customer_id, transaction_id, transaction_date,
		product_type, transaction_amount, transaction_type, account_type,
		account_status, customer_name, customer_email, customer_phone,
		customer_age, customer_segment, branch_id, branch_location, is_loaded
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE
	)
	ON CONFLICT (source_row_id) DO NOTHING`

const insertRejectedSQL = `
	INSERT INTO staging.rejected_banking_data (source_row_id, rejection_reason, etl_batch_id)
	VALUES ($1, $2, $3)`

const markProcessedSQL = `
	UPDATE staging.raw_banking_data
	SET is_processed = TRUE, processed_at = CURRENT_TIMESTAMP
	WHERE id = ANY($1)`

// CommitCleansed atomically persists one cleansing sub-batch: cleaned rows,
// rejection audit rows, and the is_processed flip for every consumed raw id.
// A crash before this commit leaves all raw rows eligible for the next run;
// after it, none are picked up again.
func (s *Store) CommitCleansed(ctx context.Context, cleaned []CleanedRecord, rejected []RejectedRecord, rawIDs []int64) error {
	if len(rawIDs) == 0 {
		return nil
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cleansing transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range cleaned {
		c := &cleaned[i]
		if _, err := tx.Exec(ctx, insertCleanedSQL,
			c.SourceRowID, c.CustomerID, c.TransactionID, c.TransactionDate,
			c.ProductType, c.TransactionAmount, c.TransactionType, c.AccountType,
			c.AccountStatus, c.CustomerName, c.CustomerEmail, c.CustomerPhone,
			c.CustomerAge, c.CustomerSegment, c.BranchID, c.BranchLocation,
		); err != nil {
			return fmt.Errorf("failed to insert cleaned row (source %d): %w", c.SourceRowID, err)
		}
	}

	for i := range rejected {
		r := &rejected[i]
		if _, err := tx.Exec(ctx, insertRejectedSQL, r.SourceRowID, r.Reason, r.BatchID); err != nil {
			return fmt.Errorf("failed to insert rejected row (source %d): %w", r.SourceRowID, err)
		}
	}

	if _, err := tx.Exec(ctx, markProcessedSQL, rawIDs); err != nil {
		return fmt.Errorf("failed to mark raw rows processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cleansing transaction: %w", err)
	}

	s.logger.Debug("cleansing sub-batch committed",
		slog.Int("cleaned", len(cleaned)),
		slog.Int("rejected", len(rejected)))
	return nil
}

const fetchUnloadedSQL = `
	SELECT
		id, source_row_id, customer_id, transaction_id, transaction_date,
		product_type, transaction_amount, transaction_type, account_type,
		account_status, customer_name, customer_email, customer_phone,
		customer_age, customer_segment, branch_id, branch_location
	FROM staging.cleaned_banking_data
	WHERE is_loaded = FALSE
	ORDER BY id
	LIMIT $1`

// FetchUnloaded returns cleaned rows not yet loaded into the fact table.
func (s *Store) FetchUnloaded(ctx context.Context, limit int) ([]CleanedRecord, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, fetchUnloadedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unloaded rows: %w", err)
	}
	defer rows.Close()

	var records []CleanedRecord
	for rows.Next() {
		var c CleanedRecord
		if err := rows.Scan(
			&c.ID, &c.SourceRowID, &c.CustomerID, &c.TransactionID, &c.TransactionDate,
			&c.ProductType, &c.TransactionAmount, &c.TransactionType, &c.AccountType,
			&c.AccountStatus, &c.CustomerName, &c.CustomerEmail, &c.CustomerPhone,
			&c.CustomerAge, &c.CustomerSegment, &c.BranchID, &c.BranchLocation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleaned row: %w", err)
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// nullable converts the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
