// Package results aggregates charity records into the fixed tabular schema
// consumed by the downstream merge, report and persistence steps.
package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/use-agent/charitybot/models"
)

// Fixed leading columns. Financial item columns follow in catalogue order.
var baseColumns = []string{
	"ABN",
	"Profile URL",
	"AIS Year",
	"Due Date",
	"Date Received",
	"View AIS",
	"Non_Reporting",
	"Financial Report URL",
}

// Columns returns the table schema.
func Columns() []string {
	cols := make([]string, 0, len(baseColumns)+len(models.FinancialItems))
	cols = append(cols, baseColumns...)
	for _, item := range models.FinancialItems {
		cols = append(cols, string(item))
	}
	return cols
}

// Table is the append-only aggregate of one run. It keeps records in arrival
// order and does no deduplication or validation.
// It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	records []models.CharityRecord
	byABN   map[string][]int
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{byABN: make(map[string][]int)}
}

// Append adds one record.
func (t *Table) Append(rec models.CharityRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byABN[rec.ABN] = append(t.byABN[rec.ABN], len(t.records))
	t.records = append(t.records, rec)
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Records returns a copy of all records in arrival order.
func (t *Table) Records() []models.CharityRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.CharityRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Lookup returns every record appended for abn, in arrival order.
func (t *Table) Lookup(abn string) []models.CharityRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.byABN[abn]
	out := make([]models.CharityRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.records[i])
	}
	return out
}

// Rows renders the table as strings, one row per record, absent values as "".
func (t *Table) Rows() [][]string {
	recs := t.Records()
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Row(rec))
	}
	return rows
}

// Row renders one record in Columns() order.
func Row(rec models.CharityRecord) []string {
	row := make([]string, 0, len(baseColumns)+len(models.FinancialItems))
	row = append(row,
		rec.ABN,
		models.Deref(rec.ProfileURL),
		models.Deref(rec.AISYear),
		models.Deref(rec.DueDate),
		models.Deref(rec.DateReceived),
		models.Deref(rec.AISDocumentURL),
		strconv.FormatBool(rec.NonReporting),
		models.Deref(rec.FinancialReportURL),
	)
	for _, item := range models.FinancialItems {
		v, _ := rec.Financials.Get(item)
		row = append(row, v)
	}
	return row
}

// WriteCSV writes a header row followed by every record.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return fmt.Errorf("results: write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return fmt.Errorf("results: write csv rows: %w", err)
	}
	return nil
}

// WriteJSON writes all records as one indented JSON array.
func (t *Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.Records()); err != nil {
		return fmt.Errorf("results: write json: %w", err)
	}
	return nil
}
