package extract

import (
	"context"
	"crypto/md5"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"banketl/internal/staging"
)

// RawWriter is the staging surface the extractor needs.
type RawWriter interface {
	InsertRaw(ctx context.Context, records []staging.RawRecord) (int64, error)
}

// Metadata describes one extraction run, for logging and lineage.
type Metadata struct {
	SourceFile     string    `json:"source_file"`
	SourceFileHash string    `json:"source_file_hash"`
	RowsExtracted  int       `json:"rows_extracted"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	ExtractedAt    time.Time `json:"extracted_at"`
}

// Extractor reads banking transactions from a spreadsheet or CSV source and
// stages them verbatim.
type Extractor struct {
	inputPath string
	batchSize int
	store     RawWriter
	logger    *slog.Logger
}

// New creates an extractor for the given source file.
func New(inputPath string, batchSize int, store RawWriter, logger *slog.Logger) *Extractor {
	return &Extractor{
		inputPath: inputPath,
		batchSize: batchSize,
		store:     store,
		logger:    logger.With(slog.String("component", "extractor")),
	}
}

// Run extracts the source file and loads it into the raw staging table.
// Returns (rows extracted, rows staged). A missing or unreadable source file
// is a fatal configuration error; nothing is written before validation.
func (e *Extractor) Run(ctx context.Context) (int64, int64, *Metadata, error) {
	info, err := os.Stat(e.inputPath)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("input file not found: %s: %w", e.inputPath, err)
	}

	hash, err := fileHash(e.inputPath)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to hash input file: %w", err)
	}

	e.logger.InfoContext(ctx, "starting extraction",
		slog.String("input", e.inputPath),
		slog.String("source_hash", hash),
		slog.Int64("size_bytes", info.Size()))

	headers, rows, err := e.readSource()
	if err != nil {
		return 0, 0, nil, err
	}

	meta := &Metadata{
		SourceFile:     filepath.Base(e.inputPath),
		SourceFileHash: hash,
		FileSizeBytes:  info.Size(),
		ExtractedAt:    time.Now().UTC(),
	}

	var batch []staging.RawRecord
	var extracted, staged int64
	for _, cells := range rows {
		if isEmptyRow(cells) {
			continue
		}
		extracted++
		batch = append(batch, toRawRecord(normalizeRow(headers, cells), meta))

		if len(batch) >= e.batchSize {
			n, err := e.store.InsertRaw(ctx, batch)
			staged += n
			if err != nil {
				return extracted, staged, meta, fmt.Errorf("failed to stage batch: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		n, err := e.store.InsertRaw(ctx, batch)
		staged += n
		if err != nil {
			return extracted, staged, meta, fmt.Errorf("failed to stage batch: %w", err)
		}
	}

	if extracted == 0 {
		return 0, 0, meta, fmt.Errorf("source file contains no data rows: %s", e.inputPath)
	}

	meta.RowsExtracted = int(extracted)
	e.logger.InfoContext(ctx, "extraction complete",
		slog.Int64("rows_extracted", extracted),
		slog.Int64("rows_staged", staged))

	return extracted, staged, meta, nil
}

// readSource reads the header row and data rows from the input file,
// dispatching on extension.
func (e *Extractor) readSource() ([]string, [][]string, error) {
	switch strings.ToLower(filepath.Ext(e.inputPath)) {
	case ".xlsx", ".xls":
		return readExcel(e.inputPath)
	case ".csv":
		return readCSV(e.inputPath)
	default:
		return nil, nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(e.inputPath))
	}
}

// readExcel reads the first sheet of an Excel workbook.
func readExcel(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("excel file has no sheets: %s", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	return rows[0], rows[1:], nil
}

// readCSV reads a comma-separated source file.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv file is empty: %s", path)
	}

	return records[0], records[1:], nil
}

// toRawRecord maps a normalized row into a staging record with provenance.
func toRawRecord(row map[string]string, meta *Metadata) staging.RawRecord {
	return staging.RawRecord{
		CustomerID:        row["customer_id"],
		TransactionID:     row["transaction_id"],
		TransactionDate:   row["transaction_date"],
		ProductType:       row["product_type"],
		TransactionAmount: row["transaction_amount"],
		TransactionType:   row["transaction_type"],
		AccountType:       row["account_type"],
		AccountStatus:     row["account_status"],
		CustomerName:      row["customer_name"],
		CustomerEmail:     row["customer_email"],
		CustomerPhone:     row["customer_phone"],
		CustomerAge:       row["customer_age"],
		CustomerSegment:   row["customer_segment"],
		BranchID:          row["branch_id"],
		BranchLocation:    row["branch_location"],
		SourceFileName:    meta.SourceFile,
		SourceFileHash:    meta.SourceFileHash,
	}
}

// fileHash computes the md5 hash of the source file for lineage tagging.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
