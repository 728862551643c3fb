package db

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed schema.sql
var schemaSQL string

// requiredTables lists the objects the pipeline cannot run without.
var requiredTables = []struct {
	schema string
	table  string
}{
	{"staging", "raw_banking_data"},
	{"staging", "cleaned_banking_data"},
	{"staging", "rejected_banking_data"},
	{"banking_dw", "dim_customers"},
	{"banking_dw", "dim_products"},
	{"banking_dw", "dim_branches"},
	{"banking_dw", "dim_time"},
	{"banking_dw", "fact_transactions"},
	{"audit", "data_quality_metrics"},
	{"audit", "etl_execution_log"},
}

// InitSchema creates or repairs the warehouse schemas and tables.
// The DDL is IF NOT EXISTS throughout, so repeated runs are safe.
func (d *DB) InitSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize warehouse schema: %w", err)
	}
	d.logger.Info("warehouse schema initialization completed")
	return nil
}

// SchemaHealthCheck validates that every required table exists.
func (d *DB) SchemaHealthCheck(ctx context.Context) error {
	ctx, cancel := d.WithTimeout(ctx)
	defer cancel()

	const existsQuery = `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = $1
			  AND table_name = $2
		)`

	for _, obj := range requiredTables {
		var exists bool
		if err := d.Pool.QueryRow(ctx, existsQuery, obj.schema, obj.table).Scan(&exists); err != nil {
			return fmt.Errorf("schema health check failed: %w", err)
		}
		if !exists {
			d.logger.Error("missing required table",
				slog.String("schema", obj.schema),
				slog.String("table", obj.table))
			return fmt.Errorf("missing required table: %s.%s", obj.schema, obj.table)
		}
	}
	return nil
}
