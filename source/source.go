// Package source reads the identifier list a run is started with.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoABNColumn is returned for CSV input without an ABN header.
var ErrNoABNColumn = errors.New("source: csv input has no ABN column")

// ReadIdentifiers reads ABNs from r, either one per line or as a CSV with an
// "ABN" header column. Values are trimmed, a trailing ".0" left behind by
// spreadsheet exports is dropped and blank values are skipped. Input order
// is kept and duplicates are not removed.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("source: read: %w", err)
	}

	header, _, _ := bytes.Cut(first, []byte("\n"))
	if bytes.ContainsRune(header, ',') {
		return readCSV(br)
	}
	return readLines(br)
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if id := Normalize(sc.Text()); id != "" {
			out = append(out, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: read lines: %w", err)
	}
	return out, nil
}

func readCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("source: read csv header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), "abn") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoABNColumn
	}

	var out []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("source: read csv: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if id := Normalize(row[col]); id != "" {
			out = append(out, id)
		}
	}
}

// Normalize trims an identifier and strips a trailing ".0".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ".0")
}
