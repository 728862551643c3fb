package cleanse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banketl/internal/staging"
)

func validRaw() staging.RawRecord {
	return staging.RawRecord{
		ID:                42,
		CustomerID:        "CUST001",
		TransactionID:     "TXN001",
		TransactionDate:   "2026-08-15",
		TransactionAmount: "1500.50",
		TransactionType:   "DEPOSIT",
		ProductType:       "savings account",
		AccountType:       "SAVINGS",
		AccountStatus:     "ACTIVE",
		CustomerName:      "jane doe",
		CustomerEmail:     "jane@example.com",
		CustomerPhone:     "+1-555-0100",
		CustomerAge:       "34",
		CustomerSegment:   "RETAIL",
		BranchID:          "BR01",
		BranchLocation:    "downtown",
	}
}

func TestCleanRecord(t *testing.T) {
	raw := validRaw()

	record, reason := CleanRecord(&raw)
	require.Empty(t, reason)
	require.NotNil(t, record)

	assert.Equal(t, int64(42), record.SourceRowID)
	assert.Equal(t, "CUST001", record.CustomerID)
	assert.Equal(t, "TXN001", record.TransactionID)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), record.TransactionDate)
	assert.InDelta(t, 1500.50, record.TransactionAmount, 0.001)

	require.NotNil(t, record.CustomerName)
	assert.Equal(t, "Jane Doe", *record.CustomerName)
	require.NotNil(t, record.BranchLocation)
	assert.Equal(t, "Downtown", *record.BranchLocation)
	require.NotNil(t, record.ProductType)
	assert.Equal(t, "Savings Account", *record.ProductType)
	require.NotNil(t, record.CustomerAge)
	assert.Equal(t, 34, *record.CustomerAge)
}

func TestCleanRecordRejections(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*staging.RawRecord)
		wantReason string
	}{
		{
			name:       "missing customer id",
			mutate:     func(r *staging.RawRecord) { r.CustomerID = "  " },
			wantReason: "missing customer_id",
		},
		{
			name:       "missing transaction id",
			mutate:     func(r *staging.RawRecord) { r.TransactionID = "" },
			wantReason: "missing transaction_id",
		},
		{
			name:       "missing amount",
			mutate:     func(r *staging.RawRecord) { r.TransactionAmount = "" },
			wantReason: "missing transaction_amount",
		},
		{
			name:       "non-numeric amount",
			mutate:     func(r *staging.RawRecord) { r.TransactionAmount = "abc" },
			wantReason: `non-numeric transaction_amount "abc"`,
		},
		{
			name:       "negative amount",
			mutate:     func(r *staging.RawRecord) { r.TransactionAmount = "-250.00" },
			wantReason: "negative transaction_amount -250",
		},
		{
			name:       "zero amount",
			mutate:     func(r *staging.RawRecord) { r.TransactionAmount = "0" },
			wantReason: "zero transaction_amount",
		},
		{
			name:       "unparseable date",
			mutate:     func(r *staging.RawRecord) { r.TransactionDate = "August 15, 2026" },
			wantReason: `unparseable transaction_date "August 15, 2026"`,
		},
		{
			name:       "empty date",
			mutate:     func(r *staging.RawRecord) { r.TransactionDate = "" },
			wantReason: `unparseable transaction_date ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)

			record, reason := CleanRecord(&raw)
			assert.Nil(t, record)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestCleanAmountStripsFormatting(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"$1,500.50", 1500.50},
		{" 42 ", 42},
		{"USD 99.99", 99.99},
	}

	for _, tt := range tests {
		amount, reason := cleanAmount(tt.input)
		require.Empty(t, reason, "input %q", tt.input)
		assert.InDelta(t, tt.want, amount, 0.001)
	}
}

func TestCleanDateLayouts(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-08-15", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)},
		{"08/15/2026", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)},
		{"15/01/2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, ok := cleanDate(tt.input)
		require.True(t, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestCleanAge(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
	}{
		{"plain integer", "34", intPtr(34)},
		{"spreadsheet float", "42.0", intPtr(42)},
		{"empty", "", nil},
		{"non-numeric", "unknown", nil},
		{"negative", "-1", nil},
		{"implausibly old", "121", nil},
		{"boundary low", "0", intPtr(0)},
		{"boundary high", "120", intPtr(120)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanAge(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestDefaultsForMissingOptionalFields(t *testing.T) {
	raw := validRaw()
	raw.ProductType = ""
	raw.AccountStatus = " "
	raw.CustomerSegment = ""
	raw.CustomerEmail = ""

	record, reason := CleanRecord(&raw)
	require.Empty(t, reason)

	require.NotNil(t, record.ProductType)
	assert.Equal(t, "UNCLASSIFIED", *record.ProductType)
	require.NotNil(t, record.AccountStatus)
	assert.Equal(t, "UNKNOWN", *record.AccountStatus)
	require.NotNil(t, record.CustomerSegment)
	assert.Equal(t, "GENERAL", *record.CustomerSegment)
	assert.Nil(t, record.CustomerEmail)
}

func intPtr(v int) *int { return &v }
