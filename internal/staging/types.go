package staging

import "time"

// RawRecord is one source row exactly as extracted. All business fields are
// untyped text; an empty string stands for a missing value. Rows are immutable
// once written except for the is_processed flip.
type RawRecord struct {
	ID                int64
	CustomerID        string
	TransactionID     string
	TransactionDate   string
	ProductType       string
	TransactionAmount string
	TransactionType   string
	AccountType       string
	AccountStatus     string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	CustomerAge       string
	CustomerSegment   string
	BranchID          string
	BranchLocation    string
	SourceFileName    string
	SourceFileHash    string
	IsProcessed       bool
	ProcessedAt       *time.Time
}

// Fields returns the business columns as a map, used for the raw_data JSON
// provenance column.
func (r *RawRecord) Fields() map[string]string {
	return map[string]string{
		"customer_id":        r.CustomerID,
		"transaction_id":     r.TransactionID,
		"transaction_date":   r.TransactionDate,
		"product_type":       r.ProductType,
		"transaction_amount": r.TransactionAmount,
		"transaction_type":   r.TransactionType,
		"account_type":       r.AccountType,
		"account_status":     r.AccountStatus,
		"customer_name":      r.CustomerName,
		"customer_email":     r.CustomerEmail,
		"customer_phone":     r.CustomerPhone,
		"customer_age":       r.CustomerAge,
		"customer_segment":   r.CustomerSegment,
		"branch_id":          r.BranchID,
		"branch_location":    r.BranchLocation,
	}
}

// CleanedRecord is the typed, validated form of exactly one RawRecord.
// Optional fields are pointers so null survives the round trip to the store.
type CleanedRecord struct {
	ID                int64
	SourceRowID       int64
	CustomerID        string
	TransactionID     string
	TransactionDate   time.Time
	ProductType       *string
	TransactionAmount float64
	TransactionType   *string
	AccountType       *string
	AccountStatus     *string
	CustomerName      *string
	CustomerEmail     *string
	CustomerPhone     *string
	CustomerAge       *int
	CustomerSegment   *string
	BranchID          *string
	BranchLocation    *string
	IsLoaded          bool
}

// RejectedRecord records why a raw row failed validation, for the audit trail.
type RejectedRecord struct {
	SourceRowID int64
	Reason      string
	BatchID     string
}
