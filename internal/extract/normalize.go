package extract

import "strings"

// columnMap translates the source file's human-friendly headers into the
// canonical staging columns.
var columnMap = map[string]string{
	"Customer ID":        "customer_id",
	"TransactionID":      "transaction_id",
	"Transaction Date":   "transaction_date",
	"Transaction Amount": "transaction_amount",
	"Transaction Type":   "transaction_type",
	"Account Type":       "account_type",
	"Email":              "customer_email",
	"Contact Number":     "customer_phone",
	"Age":                "customer_age",
	"Branch ID":          "branch_id",
	"City":               "branch_location",
	"Loan Status":        "account_status",
	"First Name":         "first_name",
	"Last Name":          "last_name",
	"Loan Type":          "loan_type",
	"Card Type":          "card_type",
}

// canonicalColumns is the staging column set, in table order.
var canonicalColumns = []string{
	"customer_id",
	"transaction_id",
	"transaction_date",
	"product_type",
	"transaction_amount",
	"transaction_type",
	"account_type",
	"account_status",
	"customer_name",
	"customer_email",
	"customer_phone",
	"customer_age",
	"customer_segment",
	"branch_id",
	"branch_location",
}

// normalizeHeader maps a raw header cell to its canonical column name.
// Unknown headers map to "" and their cells are ignored.
func normalizeHeader(header string) string {
	trimmed := strings.TrimSpace(header)
	if canonical, ok := columnMap[trimmed]; ok {
		return canonical
	}
	// Accept already-canonical snake_case headers as-is.
	lower := strings.ToLower(trimmed)
	for _, col := range canonicalColumns {
		if lower == col {
			return col
		}
	}
	return ""
}

// normalizeRow builds the canonical column->value mapping for one source row,
// applying the derived-field rules: customer_name joins first/last name,
// product_type falls back across account, loan and card type, and
// account_status / customer_segment get their defaults.
func normalizeRow(headers []string, cells []string) map[string]string {
	row := make(map[string]string, len(canonicalColumns))
	for i, header := range headers {
		canonical := normalizeHeader(header)
		if canonical == "" || i >= len(cells) {
			continue
		}
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
		}
		row[canonical] = value
	}

	if row["customer_name"] == "" {
		name := strings.TrimSpace(row["first_name"] + " " + row["last_name"])
		if name != "" {
			row["customer_name"] = name
		}
	}

	if row["product_type"] == "" {
		switch {
		case row["account_type"] != "":
			row["product_type"] = row["account_type"]
		case row["loan_type"] != "":
			row["product_type"] = row["loan_type"]
		case row["card_type"] != "":
			row["product_type"] = row["card_type"]
		default:
			row["product_type"] = "UNCLASSIFIED"
		}
	}

	if row["account_status"] == "" {
		row["account_status"] = "UNKNOWN"
	}
	if row["customer_segment"] == "" {
		row["customer_segment"] = "GENERAL"
	}

	return row
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
