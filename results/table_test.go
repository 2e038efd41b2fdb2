package results

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/charitybot/models"
)

func fullRecord() models.CharityRecord {
	rec := models.NewCharityRecord("11000000000")
	rec.ProfileURL = models.Str("https://www.acnc.gov.au/charity/charities/abc/profile")
	rec.AISYear = models.Str("2023")
	rec.DueDate = models.Str("31 January 2024")
	rec.DateReceived = models.Str("15 December 2023")
	rec.AISDocumentURL = models.Str("https://www.acnc.gov.au/ais/2023")
	rec.NonReporting = false
	rec.Financials["Total revenue"] = "$1,234"
	return rec
}

func TestColumns(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, 8+len(models.FinancialItems))
	assert.Equal(t, "ABN", cols[0])
	assert.Equal(t, "Non_Reporting", cols[6])
	assert.Equal(t, string(models.FinancialItems[0]), cols[8])
}

func TestTableAppendAndLookup(t *testing.T) {
	table := NewTable()
	table.Append(models.NewCharityRecord("1"))
	table.Append(fullRecord())
	table.Append(models.NewCharityRecord("1"))

	assert.Equal(t, 3, table.Len())
	assert.Len(t, table.Lookup("1"), 2, "duplicates are kept")
	assert.Empty(t, table.Lookup("missing"))

	recs := table.Records()
	recs[0].ABN = "mutated"
	assert.Equal(t, "1", table.Records()[0].ABN)
}

func TestRowAbsentValuesAreEmpty(t *testing.T) {
	row := Row(models.NewCharityRecord("22"))
	require.Len(t, row, len(Columns()))
	assert.Equal(t, "22", row[0])
	assert.Equal(t, "", row[1])
	assert.Equal(t, "true", row[6])
	for _, v := range row[8:] {
		assert.Empty(t, v)
	}
}

func TestWriteCSV(t *testing.T) {
	table := NewTable()
	table.Append(fullRecord())

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Columns(), rows[0])

	idx := -1
	for i, c := range rows[0] {
		if c == "Total revenue" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	assert.Equal(t, "$1,234", rows[1][idx])
	assert.Equal(t, "false", rows[1][6])
}

func TestWriteJSONAndJSONL(t *testing.T) {
	table := NewTable()
	table.Append(fullRecord())
	table.Append(models.NewCharityRecord("33"))

	var buf bytes.Buffer
	require.NoError(t, table.WriteJSON(&buf))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Nil(t, decoded[1]["profile_url"])
	assert.Equal(t, true, decoded[1]["non_reporting"])

	var stream bytes.Buffer
	sink := NewJSONLSink(&stream)
	for _, rec := range table.Records() {
		require.NoError(t, sink.Write(rec))
	}
	lines := strings.Split(strings.TrimSpace(stream.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"ais_year":"2023"`)
}

func TestCheckCoverage(t *testing.T) {
	table := NewTable()
	table.Append(fullRecord())
	notFound := models.NewCharityRecord("2")
	table.Append(notFound)
	profileOnly := models.NewCharityRecord("3")
	profileOnly.ProfileURL = models.Str("https://example.org/p")
	table.Append(profileOnly)

	cov := CheckCoverage([]string{"11000000000", "2", "3", "4", "2"}, table)
	assert.Equal(t, 5, cov.Input)
	assert.Equal(t, 3, cov.Output)
	assert.Equal(t, []string{"4", "2"}, cov.Missing)
	assert.False(t, cov.Complete())
	assert.Equal(t, 2, cov.NonReporting)
	assert.Equal(t, 1, cov.ByOutcome[models.OutcomeComplete])
	assert.Equal(t, 1, cov.ByOutcome[models.OutcomeNotFound])
	assert.Equal(t, 1, cov.ByOutcome[models.OutcomeProfileOnly])

	var buf bytes.Buffer
	require.NoError(t, cov.WriteSummary(&buf))
	out := buf.String()
	assert.Contains(t, out, "| Identifiers in     | 5 |")
	assert.Contains(t, out, "| Missing            | 2 |")

	// Every line of the box has the same width.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for _, l := range lines[1:] {
		assert.Equal(t, len(lines[0]), len(l))
	}
}
