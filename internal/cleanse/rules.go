package cleanse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"banketl/internal/config"
	"banketl/internal/staging"
)

var (
	amountJunk = regexp.MustCompile(`[^\d.-]`)
	titleCaser = cases.Title(language.Und)
)

// CleanRecord validates and types one raw row. On success it returns the
// cleaned record; on failure it returns the rejection reason. Only mandatory
// field failures reject; implausible optional values are soft-cleaned to
// null instead.
func CleanRecord(raw *staging.RawRecord) (*staging.CleanedRecord, string) {
	customerID := strings.TrimSpace(raw.CustomerID)
	if customerID == "" {
		return nil, "missing customer_id"
	}

	transactionID := strings.TrimSpace(raw.TransactionID)
	if transactionID == "" {
		return nil, "missing transaction_id"
	}

	amount, reason := cleanAmount(raw.TransactionAmount)
	if reason != "" {
		return nil, reason
	}

	date, ok := cleanDate(raw.TransactionDate)
	if !ok {
		return nil, fmt.Sprintf("unparseable transaction_date %q", strings.TrimSpace(raw.TransactionDate))
	}

	cleaned := &staging.CleanedRecord{
		SourceRowID:       raw.ID,
		CustomerID:        customerID,
		TransactionID:     transactionID,
		TransactionDate:   date,
		TransactionAmount: amount,
		CustomerAge:       cleanAge(raw.CustomerAge),
		ProductType:       textOrDefault(raw.ProductType, "UNCLASSIFIED", true),
		AccountStatus:     textOrDefault(raw.AccountStatus, "UNKNOWN", false),
		CustomerSegment:   textOrDefault(raw.CustomerSegment, "GENERAL", false),
		TransactionType:   text(raw.TransactionType, false),
		AccountType:       text(raw.AccountType, false),
		CustomerName:      text(raw.CustomerName, true),
		CustomerEmail:     text(raw.CustomerEmail, false),
		CustomerPhone:     text(raw.CustomerPhone, false),
		BranchID:          text(raw.BranchID, false),
		BranchLocation:    text(raw.BranchLocation, true),
	}
	return cleaned, ""
}

// cleanAmount strips formatting noise and parses the transaction amount.
// Negative and zero amounts are invalid banking transactions, not debits.
func cleanAmount(value string) (float64, string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, "missing transaction_amount"
	}

	stripped := amountJunk.ReplaceAllString(trimmed, "")
	amount, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, fmt.Sprintf("non-numeric transaction_amount %q", trimmed)
	}
	if amount < 0 {
		return 0, fmt.Sprintf("negative transaction_amount %v", amount)
	}
	if amount == 0 {
		return 0, "zero transaction_amount"
	}
	return amount, ""
}

// cleanDate parses the transaction date against the accepted layouts in order.
func cleanDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range config.DateFormats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cleanAge parses the optional customer age. Non-numeric or implausible
// values become null rather than rejecting the record.
func cleanAge(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	age, err := strconv.Atoi(trimmed)
	if err != nil {
		// Ages sometimes arrive as "42.0" from spreadsheet exports.
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil {
			return nil
		}
		age = int(f)
	}
	if age < config.MinCustomerAge || age > config.MaxCustomerAge {
		return nil
	}
	return &age
}

// text trims a string field, coercing empty to null. When title is set the
// value is normalized to title case.
func text(value string, title bool) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if title {
		trimmed = titleCaser.String(strings.ToLower(trimmed))
	}
	return &trimmed
}

// textOrDefault is text with a fallback for missing values.
func textOrDefault(value, fallback string, title bool) *string {
	if v := text(value, title); v != nil {
		return v
	}
	return &fallback
}
