package quality

// Status grades one quality check. Severity orders PASS < WARNING < FAIL so
// the overall batch status is the worst individual result.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusFail    Status = "FAIL"
)

var severity = map[Status]int{
	StatusPass:    0,
	StatusWarning: 1,
	StatusFail:    2,
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Metric names, one per check.
const (
	MetricCompleteness         = "COMPLETENESS_PCT"
	MetricNullPercentage       = "NULL_PERCENTAGE"
	MetricDuplicates           = "DUPLICATES"
	MetricReferentialIntegrity = "REFERENTIAL_INTEGRITY"
)

// Metric is one computed quality measurement. Persisted rows are append-only;
// history is reconstructed by querying across batches.
type Metric struct {
	Table       string  `json:"table"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Percentage  float64 `json:"percentage"`
	RecordCount int64   `json:"record_count"`
	Status      Status  `json:"status"`
	Description string  `json:"description"`
}
