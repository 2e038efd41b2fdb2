package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/use-agent/charitybot/models"
)

// Coverage compares a run's input identifiers against what came back.
// Records carry no error flag, so a missing identifier is the only trace of
// a worker that failed to start or crashed mid-chunk.
type Coverage struct {
	Input        int
	Output       int
	Missing      []string // input identifiers with no record, input order
	NonReporting int
	ByOutcome    map[string]int
}

// CheckCoverage computes the Coverage of table against input.
func CheckCoverage(input []string, table *Table) Coverage {
	cov := Coverage{
		Input:     len(input),
		ByOutcome: make(map[string]int),
	}

	seen := make(map[string]int)
	for _, rec := range table.Records() {
		cov.Output++
		seen[rec.ABN]++
		if rec.NonReporting {
			cov.NonReporting++
		}
		cov.ByOutcome[rec.Outcome()]++
	}

	// Duplicated input identifiers each need their own record.
	for _, abn := range input {
		if seen[abn] > 0 {
			seen[abn]--
			continue
		}
		cov.Missing = append(cov.Missing, abn)
	}
	return cov
}

// Complete reports whether every input identifier produced a record.
func (c Coverage) Complete() bool {
	return len(c.Missing) == 0
}

// WriteSummary renders an aligned two-column summary of the run.
func (c Coverage) WriteSummary(w io.Writer) error {
	rows := [][2]string{
		{"Identifiers in", fmt.Sprint(c.Input)},
		{"Records out", fmt.Sprint(c.Output)},
		{"Missing", fmt.Sprint(len(c.Missing))},
		{"Non-reporting", fmt.Sprint(c.NonReporting)},
		{"Not found", fmt.Sprint(c.ByOutcome[models.OutcomeNotFound])},
		{"Profile only", fmt.Sprint(c.ByOutcome[models.OutcomeProfileOnly])},
		{"AIS, no financials", fmt.Sprint(c.ByOutcome[models.OutcomeAISOnly])},
		{"With financials", fmt.Sprint(c.ByOutcome[models.OutcomeComplete])},
	}
	return writeAligned(w, rows)
}

func writeAligned(w io.Writer, rows [][2]string) error {
	labelWidth, valueWidth := 0, 0
	for _, r := range rows {
		labelWidth = max(labelWidth, runewidth.StringWidth(r[0]))
		valueWidth = max(valueWidth, runewidth.StringWidth(r[1]))
	}

	rule := "+" + strings.Repeat("-", labelWidth+2) + "+" + strings.Repeat("-", valueWidth+2) + "+\n"
	var b strings.Builder
	b.WriteString(rule)
	for _, r := range rows {
		b.WriteString("| ")
		b.WriteString(runewidth.FillRight(r[0], labelWidth))
		b.WriteString(" | ")
		b.WriteString(runewidth.FillLeft(r[1], valueWidth))
		b.WriteString(" |\n")
	}
	b.WriteString(rule)

	_, err := io.WriteString(w, b.String())
	return err
}
