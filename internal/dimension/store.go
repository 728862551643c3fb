package dimension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"banketl/internal/db"
)

// Dimension identifies one warehouse dimension table.
type Dimension string

const (
	Customer Dimension = "customer"
	Product  Dimension = "product"
	Branch   Dimension = "branch"
	// Time is resolved against the pre-populated calendar, never inserted.
	Time Dimension = "time"
)

// ErrUniqueConflict is returned by Insert when another loader instance created
// the same natural key concurrently. The caller recovers by re-fetching.
var ErrUniqueConflict = errors.New("dimension row already exists")

// descriptor maps a dimension to its table layout.
type descriptor struct {
	table        string
	surrogateCol string
	naturalCol   string
}

var descriptors = map[Dimension]descriptor{
	Customer: {table: "banking_dw.dim_customers", surrogateCol: "customer_key", naturalCol: "customer_id"},
	Product:  {table: "banking_dw.dim_products", surrogateCol: "product_key", naturalCol: "product_type"},
	Branch:   {table: "banking_dw.dim_branches", surrogateCol: "branch_key", naturalCol: "branch_id"},
}

// Store reads and writes dimension tables.
type Store struct {
	db     *db.DB
	logger *slog.Logger
}

// NewStore creates a dimension store.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With(slog.String("component", "dimension_store")),
	}
}

// LoadKeys returns every natural-to-surrogate key mapping for a dimension,
// used to warm the loader cache at start.
func (s *Store) LoadKeys(ctx context.Context, dim Dimension) (map[string]int, error) {
	desc, ok := descriptors[dim]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s, %s FROM %s", desc.naturalCol, desc.surrogateCol, desc.table)
	rows, err := s.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s keys: %w", dim, err)
	}
	defer rows.Close()

	keys := make(map[string]int)
	for rows.Next() {
		var natural string
		var surrogate int
		if err := rows.Scan(&natural, &surrogate); err != nil {
			return nil, fmt.Errorf("failed to scan %s key: %w", dim, err)
		}
		keys[natural] = surrogate
	}
	return keys, rows.Err()
}

// FindKey looks up the surrogate key for a natural key.
func (s *Store) FindKey(ctx context.Context, dim Dimension, naturalKey string) (int, bool, error) {
	desc, ok := descriptors[dim]
	if !ok {
		return 0, false, fmt.Errorf("unknown dimension %q", dim)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", desc.surrogateCol, desc.table, desc.naturalCol)
	var key int
	err := s.db.Pool.QueryRow(ctx, query, naturalKey).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s key: %w", dim, err)
	}
	return key, true, nil
}

// Insert creates a new dimension row with minimal attributes and returns its
// surrogate key. A concurrent insert of the same natural key surfaces as
// ErrUniqueConflict.
func (s *Store) Insert(ctx context.Context, dim Dimension, naturalKey string) (int, error) {
	desc, ok := descriptors[dim]
	if !ok {
		return 0, fmt.Errorf("unknown dimension %q", dim)
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (%s, is_active) VALUES ($1, TRUE) RETURNING %s",
		desc.table, desc.naturalCol, desc.surrogateCol)

	var key int
	err := s.db.Pool.QueryRow(ctx, query, naturalKey).Scan(&key)
	if db.IsUniqueViolation(err) {
		return 0, ErrUniqueConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s row: %w", dim, err)
	}
	return key, nil
}

// TimeKey resolves a transaction date against the pre-populated calendar.
// Dates outside the calendar range report ok=false; the caller falls back to
// the sentinel key.
func (s *Store) TimeKey(ctx context.Context, date time.Time) (int, bool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	var key int
	err := s.db.Pool.QueryRow(ctx,
		"SELECT time_key FROM banking_dw.dim_time WHERE date = $1", date).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up time key: %w", err)
	}
	return key, true, nil
}

// PopulateFromCleaned refreshes dimension attributes from the cleansed
// staging rows not yet loaded. Unique-constraint upserts make this safe to
// re-run and safe under concurrent shard execution.
func (s *Store) PopulateFromCleaned(ctx context.Context) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	statements := []struct {
		name  string
		query string
	}{
		{"customers", `
			INSERT INTO banking_dw.dim_customers
				(customer_id, customer_name, customer_email, customer_phone, customer_age, customer_segment, is_active)
			SELECT DISTINCT ON (customer_id)
				customer_id, customer_name, customer_email, customer_phone, customer_age, customer_segment, TRUE
			FROM staging.cleaned_banking_data
			WHERE is_loaded = FALSE
			ON CONFLICT (customer_id) DO UPDATE SET
				customer_name = EXCLUDED.customer_name,
				customer_email = EXCLUDED.customer_email,
				customer_phone = EXCLUDED.customer_phone,
				customer_age = EXCLUDED.customer_age,
				customer_segment = EXCLUDED.customer_segment,
				updated_at = CURRENT_TIMESTAMP`},
		{"products", `
			INSERT INTO banking_dw.dim_products (product_type, product_name, product_category, is_active)
			SELECT DISTINCT product_type, product_type, 'BANKING', TRUE
			FROM staging.cleaned_banking_data
			WHERE is_loaded = FALSE AND product_type IS NOT NULL
			ON CONFLICT (product_type) DO UPDATE SET
				product_name = EXCLUDED.product_name,
				updated_at = CURRENT_TIMESTAMP`},
		{"branches", `
			INSERT INTO banking_dw.dim_branches (branch_id, branch_name, branch_location, is_active)
			SELECT DISTINCT ON (branch_id) branch_id, branch_id, branch_location, TRUE
			FROM staging.cleaned_banking_data
			WHERE is_loaded = FALSE AND branch_id IS NOT NULL
			ON CONFLICT (branch_id) DO UPDATE SET
				branch_location = EXCLUDED.branch_location,
				updated_at = CURRENT_TIMESTAMP`},
	}

	for _, stmt := range statements {
		if _, err := s.db.Pool.Exec(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to populate %s dimension: %w", stmt.name, err)
		}
		s.logger.Debug("dimension populated", slog.String("dimension", stmt.name))
	}
	return nil
}
