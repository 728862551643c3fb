package quality

import (
	"context"
	"fmt"
	"log/slog"

	"banketl/internal/config"
	"banketl/internal/db"
)

// tableSpec describes how a table is assessed: which schema it lives in,
// which fields are mandatory for completeness, which optional columns feed
// the null-rate average, and which columns form the duplicate identity.
type tableSpec struct {
	schema          string
	mandatoryCols   []string
	optionalCols    []string
	duplicateCols   []string
	hasDimensionFKs bool
}

var tableSpecs = map[string]tableSpec{
	"cleaned_banking_data": {
		schema:        config.StagingSchema,
		mandatoryCols: []string{"customer_id", "transaction_id", "transaction_date", "transaction_amount"},
		optionalCols: []string{
			"product_type", "transaction_type", "account_type", "account_status",
			"customer_name", "customer_email", "customer_phone", "customer_age",
			"customer_segment", "branch_id", "branch_location",
		},
		duplicateCols: []string{"customer_id", "transaction_id", "transaction_date"},
	},
	"fact_transactions": {
		schema:          config.WarehouseSchema,
		mandatoryCols:   []string{"customer_key", "product_key", "time_key", "transaction_id", "transaction_amount", "transaction_date"},
		optionalCols:    []string{"branch_key", "transaction_type", "account_type", "account_status"},
		duplicateCols:   []string{"transaction_id"},
		hasDimensionFKs: true,
	},
}

// Store computes quality statistics in the warehouse and persists metrics.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates a quality store.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With(slog.String("component", "quality_store")),
	}
}

// CompletenessStats returns (total rows, rows with every mandatory field
// non-null) for a table.
func (s *Store) CompletenessStats(ctx context.Context, table string) (int64, int64, error) {
	spec, ok := tableSpecs[table]
	if !ok {
		return 0, 0, fmt.Errorf("unknown quality table %q", table)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	cond := ""
	for i, col := range spec.mandatoryCols {
		if i > 0 {
			cond += " AND "
		}
		cond += col + " IS NOT NULL"
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE %s) FROM %s.%s",
		cond, spec.schema, table)

	var total, complete int64
	if err := s.db.Pool.QueryRow(ctx, query).Scan(&total, &complete); err != nil {
		return 0, 0, fmt.Errorf("completeness query failed for %s: %w", table, err)
	}
	return total, complete, nil
}

// NullStats returns the total row count and the per-column null counts for
// the table's optional columns.
func (s *Store) NullStats(ctx context.Context, table string) (int64, map[string]int64, error) {
	spec, ok := tableSpecs[table]
	if !ok {
		return 0, nil, fmt.Errorf("unknown quality table %q", table)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query := "SELECT COUNT(*)"
	for _, col := range spec.optionalCols {
		query += fmt.Sprintf(", COUNT(*) FILTER (WHERE %s IS NULL)", col)
	}
	query += fmt.Sprintf(" FROM %s.%s", spec.schema, table)

	dest := make([]any, 0, len(spec.optionalCols)+1)
	var total int64
	dest = append(dest, &total)
	counts := make([]int64, len(spec.optionalCols))
	for i := range counts {
		dest = append(dest, &counts[i])
	}

	if err := s.db.Pool.QueryRow(ctx, query).Scan(dest...); err != nil {
		return 0, nil, fmt.Errorf("null-rate query failed for %s: %w", table, err)
	}

	nulls := make(map[string]int64, len(spec.optionalCols))
	for i, col := range spec.optionalCols {
		nulls[col] = counts[i]
	}
	return total, nulls, nil
}

// DuplicateStats returns (total rows, rows sharing their duplicate identity
// with at least one other row) for a table.
func (s *Store) DuplicateStats(ctx context.Context, table string) (int64, int64, error) {
	spec, ok := tableSpecs[table]
	if !ok {
		return 0, 0, fmt.Errorf("unknown quality table %q", table)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	cols := ""
	for i, col := range spec.duplicateCols {
		if i > 0 {
			cols += ", "
		}
		cols += col
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(cnt), 0), COALESCE(SUM(cnt) FILTER (WHERE cnt > 1), 0)
		FROM (SELECT COUNT(*) AS cnt FROM %s.%s GROUP BY %s) g`,
		spec.schema, table, cols)

	var total, duplicated int64
	if err := s.db.Pool.QueryRow(ctx, query).Scan(&total, &duplicated); err != nil {
		return 0, 0, fmt.Errorf("duplicate query failed for %s: %w", table, err)
	}
	return total, duplicated, nil
}

// SentinelStats returns, for a batch's fact rows, the total count and how
// many fell back to the sentinel key in any mandatory dimension. That
// fraction proxies unresolved references.
func (s *Store) SentinelStats(ctx context.Context, batchID string) (int64, int64, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE customer_key = %d OR product_key = %d OR time_key = %d)
		FROM banking_dw.fact_transactions
		WHERE etl_batch_id = $1`,
		config.SentinelKey, config.SentinelKey, config.SentinelKey)

	var total, fallbacks int64
	if err := s.db.Pool.QueryRow(ctx, query, batchID).Scan(&total, &fallbacks); err != nil {
		return 0, 0, fmt.Errorf("referential integrity query failed: %w", err)
	}
	return total, fallbacks, nil
}

const insertMetricSQL = `
	INSERT INTO audit.data_quality_metrics
		(etl_batch_id, table_name, metric_name, metric_value, metric_percentage,
		 record_count, quality_status, metric_description)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// InsertMetrics appends metric rows for a batch. Metrics are never updated.
func (s *Store) InsertMetrics(ctx context.Context, batchID string, metrics []Metric) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	for i := range metrics {
		m := &metrics[i]
		if _, err := s.db.Pool.Exec(ctx, insertMetricSQL,
			batchID, m.Table, m.Name, m.Value, m.Percentage,
			m.RecordCount, string(m.Status), m.Description,
		); err != nil {
			return fmt.Errorf("failed to store quality metric %s/%s: %w", m.Table, m.Name, err)
		}
	}

	s.logger.DebugContext(ctx, "quality metrics stored",
		slog.String("batch_id", batchID),
		slog.Int("count", len(metrics)))
	return nil
}

// MetricsForBatch returns the persisted metrics for a batch, for the control
// plane's quality endpoint.
func (s *Store) MetricsForBatch(ctx context.Context, batchID string) ([]Metric, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, `
		SELECT table_name, metric_name, COALESCE(metric_value, 0),
		       COALESCE(metric_percentage, 0), record_count, quality_status,
		       COALESCE(metric_description, '')
		FROM audit.data_quality_metrics
		WHERE etl_batch_id = $1
		ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quality metrics: %w", err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		var status string
		if err := rows.Scan(&m.Table, &m.Name, &m.Value, &m.Percentage,
			&m.RecordCount, &status, &m.Description); err != nil {
			return nil, fmt.Errorf("failed to scan quality metric: %w", err)
		}
		m.Status = Status(status)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
