// Package dataset loads the precomputed churn-score table the dashboard reads
// on every render pass. Sources return a raw churn.Table; schema validation is
// left to churn.Classify.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
)

// Source loads the churn table. Implementations must be safe to call
// concurrently; every call re-reads the underlying data.
type Source interface {
	Load(ctx context.Context) (churn.Table, error)
}

// ErrEmptyInput is returned when the input has no header row.
var ErrEmptyInput = errors.New("dataset: input has no header row")

// Open returns a file-backed Source chosen by extension: .xlsx is read with
// excelize, anything else as CSV.
func Open(path string) Source {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return &XLSXSource{Path: path}
	}
	return &CSVSource{Path: path}
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

// CSVSource reads a comma-separated file with a header row.
type CSVSource struct {
	Path string
}

// Load reads the whole file.
func (s *CSVSource) Load(ctx context.Context) (churn.Table, error) {
	if err := ctx.Err(); err != nil {
		return churn.Table{}, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return churn.Table{}, fmt.Errorf("dataset: open %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return churn.Table{}, fmt.Errorf("dataset: read %s: %w", s.Path, err)
	}
	return toTable(records)
}

// ─── XLSX ─────────────────────────────────────────────────────────────────────

// XLSXSource reads the first sheet of a workbook, first row as header.
type XLSXSource struct {
	Path string
}

// Load reads the first sheet.
func (s *XLSXSource) Load(ctx context.Context) (churn.Table, error) {
	if err := ctx.Err(); err != nil {
		return churn.Table{}, err
	}

	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return churn.Table{}, fmt.Errorf("dataset: open %s: %w", s.Path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return churn.Table{}, fmt.Errorf("dataset: %s has no sheets", s.Path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return churn.Table{}, fmt.Errorf("dataset: read sheet %q: %w", sheets[0], err)
	}
	return toTable(rows)
}

// toTable splits the header from data rows and pads short rows so every row
// has one cell per column.
func toTable(records [][]string) (churn.Table, error) {
	if len(records) == 0 {
		return churn.Table{}, ErrEmptyInput
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}
	return churn.Table{Columns: header, Rows: rows}, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
