package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/metrics"
	"github.com/use-agent/charitybot/models"
)

const (
	abn         = "11000000000"
	searchURL   = "https://www.acnc.gov.au/charity/charities?search=" + abn
	profileURL  = "https://www.acnc.gov.au/charity/charities/abc-123/profile"
	documentURL = "https://www.acnc.gov.au/charity/charities/abc-123/documents"
	aisURL      = "https://www.acnc.gov.au/charity/charities/abc-123/documents/ais-2023"
	reportURL   = "https://www.acnc.gov.au/charity/charities/abc-123/fr-2023"
)

const searchHit = `<html><body>
<a href="/charity/charities/other/overview">Overview</a>
<a href="/charity/charities/abc-123/profile">Example Charity</a>
<a href="/charity/charities/zzz/profile">Second result</a>
</body></html>`

const searchMiss = `<html><body><p>No results found</p></body></html>`

func listing(rows string) string {
	return `<html><body><table><thead><tr><th>Title</th></tr></thead><tbody>` + rows + `</tbody></table></body></html>`
}

const (
	rowAIS2024Pending = `<tr><td>Annual Information Statement 2024</td><td>31/12/2024</td><td>Not yet submitted</td><td></td></tr>`
	rowAIS2024NotReq  = `<tr><td>Annual Information Statement 2024</td><td>31/12/2024</td><td>Not required</td><td></td></tr>`
	rowAIS2023        = `<tr><td>Annual Information Statement 2023</td><td>31/12/2023</td><td>15/11/2023</td><td><a href="/charity/charities/abc-123/documents/ais-2023">View</a></td></tr>`
	rowAIS2023NoLink  = `<tr><td>Annual Information Statement 2023</td><td>31/12/2023</td><td>15/11/2023</td><td></td></tr>`
	rowReport2023     = `<tr><td>Financial Report 2023</td><td></td><td>20/11/2023</td><td><a href="fr-2023">PDF</a></td></tr>`
	rowAIS2022        = `<tr><td>Annual Information Statement 2022</td><td>31/12/2022</td><td>01/10/2022</td><td><a href="/ais-2022">View</a></td></tr>`
	rowReport2022     = `<tr><td>Financial Report 2022</td><td></td><td>01/10/2022</td><td><a href="/fr-2022">PDF</a></td></tr>`
	rowTooShort       = `<tr><td colspan="4">Documents lodged before 2013 are not shown</td></tr>`
)

const aisPage = `<html><body>
<h2>Summary</h2>
<table><tr><td>Total revenue</td><td>$999</td></tr></table>
<h3>Income and Expenses</h3>
<table>
  <tr><td>Total revenue</td><td>$1,000</td></tr>
  <tr><td>Donations and bequests</td><td>$50</td></tr>
  <tr><th>Employee expenses</th><td>ignored</td></tr>
</table>
<h3>Balance sheet</h3>
<table>
  <tr><td>Total assets</td><td>$5,000</td></tr>
  <tr><td>Total revenue (restated)</td><td>$1,100</td></tr>
  <tr><td>Total liabilities</td><td>$10</td><td>three cells</td></tr>
</table>
</body></html>`

const aisPageNoFinancials = `<html><body><h3>Activities</h3><p>Loading</p></body></html>`

func testConfig() config.RegistryConfig {
	return config.RegistryConfig{
		BaseURL:           "https://www.acnc.gov.au",
		SearchPath:        "/charity/charities",
		StageTimeout:      30 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		NavigationTimeout: time.Second,
	}
}

func run(t *testing.T, pages map[string]string) (models.CharityRecord, *metrics.Metrics, error) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	s := engine.NewStaticSession(pages, 5*time.Millisecond)
	rec, err := New(testConfig(), m).Extract(context.Background(), s, abn)
	return rec, m, err
}

func TestExtractFullRecord(t *testing.T) {
	rec, m, err := run(t, map[string]string{
		searchURL:   searchHit,
		documentURL: listing(rowTooShort + rowAIS2024Pending + rowAIS2023 + rowReport2023 + rowAIS2022 + rowReport2022),
		aisURL:      aisPage,
	})
	require.NoError(t, err)

	assert.Equal(t, abn, rec.ABN)
	assert.Equal(t, profileURL, models.Deref(rec.ProfileURL))
	assert.Equal(t, "2023", models.Deref(rec.AISYear))
	assert.Equal(t, "31/12/2023", models.Deref(rec.DueDate))
	assert.Equal(t, "15/11/2023", models.Deref(rec.DateReceived))
	assert.Equal(t, aisURL, models.Deref(rec.AISDocumentURL))
	assert.Equal(t, reportURL, models.Deref(rec.FinancialReportURL))
	assert.False(t, rec.NonReporting)

	assert.Equal(t, models.Financials{
		"Total revenue":          "$1,100",
		"Donations and bequests": "$50",
		"Total assets":           "$5,000",
	}, rec.Financials)
	assert.Equal(t, models.OutcomeComplete, rec.Outcome())
	assert.Zero(t, testutil.CollectAndCount(m.StageTimeouts))
}

// Scenario A: the search returns nothing.
func TestExtractNoSearchResult(t *testing.T) {
	rec, m, err := run(t, map[string]string{searchURL: searchMiss})
	require.NoError(t, err)

	want := models.NewCharityRecord(abn)
	assert.Equal(t, want, rec)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTimeouts.WithLabelValues(models.ErrCodeLookupTimeout)))
}

// Scenario B: an AIS without a document link never reaches stage three.
func TestExtractAISWithoutLink(t *testing.T) {
	rec, _, err := run(t, map[string]string{
		searchURL:   searchHit,
		documentURL: listing(rowAIS2023NoLink),
	})
	require.NoError(t, err)

	assert.Equal(t, "2023", models.Deref(rec.AISYear))
	assert.Equal(t, "31/12/2023", models.Deref(rec.DueDate))
	assert.Equal(t, "15/11/2023", models.Deref(rec.DateReceived))
	assert.False(t, rec.NonReporting)
	assert.Nil(t, rec.AISDocumentURL)
	assert.Nil(t, rec.FinancialReportURL)
	assert.Empty(t, rec.Financials)
}

// Scenario C: the AIS page never shows the income tables.
func TestExtractFinancialTimeout(t *testing.T) {
	rec, m, err := run(t, map[string]string{
		searchURL:   searchHit,
		documentURL: listing(rowAIS2023 + rowReport2023),
		aisURL:      aisPageNoFinancials,
	})
	require.NoError(t, err)

	assert.Equal(t, profileURL, models.Deref(rec.ProfileURL))
	assert.Equal(t, "2023", models.Deref(rec.AISYear))
	assert.Equal(t, aisURL, models.Deref(rec.AISDocumentURL))
	assert.Equal(t, reportURL, models.Deref(rec.FinancialReportURL))
	assert.False(t, rec.NonReporting)
	assert.Empty(t, rec.Financials)
	assert.Equal(t, models.OutcomeAISOnly, rec.Outcome())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTimeouts.WithLabelValues(models.ErrCodeExtractionTimeout)))
}

func TestExtractNotRequiredStopsDiscovery(t *testing.T) {
	rec, _, err := run(t, map[string]string{
		searchURL:   searchHit,
		documentURL: listing(rowAIS2024Pending + rowAIS2024NotReq + rowAIS2023 + rowReport2023),
	})
	require.NoError(t, err)

	assert.Equal(t, profileURL, models.Deref(rec.ProfileURL))
	assert.True(t, rec.NonReporting)
	assert.Nil(t, rec.AISYear)
	assert.Nil(t, rec.DueDate)
	assert.Nil(t, rec.AISDocumentURL)
	assert.Nil(t, rec.FinancialReportURL)
}

func TestExtractListingTimeout(t *testing.T) {
	rec, m, err := run(t, map[string]string{
		searchURL:   searchHit,
		documentURL: `<html><body><p>Documents are loading</p></body></html>`,
	})
	require.NoError(t, err)

	assert.Equal(t, profileURL, models.Deref(rec.ProfileURL))
	assert.True(t, rec.NonReporting)
	assert.Nil(t, rec.AISYear)
	assert.Equal(t, models.OutcomeProfileOnly, rec.Outcome())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTimeouts.WithLabelValues(models.ErrCodeListingTimeout)))
}

func TestExtractNavigationFailureIsReturned(t *testing.T) {
	_, _, err := run(t, map[string]string{searchURL: searchHit})
	require.Error(t, err)

	var ee *models.ExtractError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, models.ErrCodeNavigation, ee.Code)
}

// stallingSession never finishes loading stallOn; every other URL is
// served by the wrapped session.
type stallingSession struct {
	engine.Session
	stallOn string
}

func (s stallingSession) Navigate(ctx context.Context, url string) error {
	if url == s.stallOn {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.Session.Navigate(ctx, url)
}

func TestExtractSlowSearchPageFinalizesRecord(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationTimeout = 20 * time.Millisecond
	m := metrics.New(prometheus.NewRegistry())
	s := stallingSession{
		Session: engine.NewStaticSession(map[string]string{}, 5*time.Millisecond),
		stallOn: searchURL,
	}

	rec, err := New(cfg, m).Extract(context.Background(), s, abn)
	require.NoError(t, err)

	assert.Equal(t, abn, rec.ABN)
	assert.Nil(t, rec.ProfileURL)
	assert.True(t, rec.NonReporting)
	assert.Equal(t, models.OutcomeNotFound, rec.Outcome())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTimeouts.WithLabelValues(models.ErrCodeLookupTimeout)))
}

func TestExtractSlowDocumentsPageIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationTimeout = 20 * time.Millisecond
	s := stallingSession{
		Session: engine.NewStaticSession(map[string]string{searchURL: searchHit}, 5*time.Millisecond),
		stallOn: documentURL,
	}

	_, err := New(cfg, nil).Extract(context.Background(), s, abn)
	require.Error(t, err)

	var ee *models.ExtractError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, models.ErrCodeNavigation, ee.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := engine.NewStaticSession(map[string]string{searchURL: searchMiss}, 5*time.Millisecond)

	_, err := New(testConfig(), nil).Extract(ctx, s, abn)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSelectAIS(t *testing.T) {
	ais := func(year, status string) listingRow {
		return listingRow{title: "Annual Information Statement " + year, received: status}
	}
	tests := []struct {
		name   string
		rows   []listingRow
		want   string
		wantOK bool
	}{
		{"first lodged wins", []listingRow{ais("2023", "01/01/2024"), ais("2022", "01/01/2023")}, "Annual Information Statement 2023", true},
		{"skips pending and overdue", []listingRow{ais("2025", "Pending"), ais("2024", "Overdue"), ais("2023", "x")}, "Annual Information Statement 2023", true},
		{"not required ends search", []listingRow{ais("2024", "Not required"), ais("2023", "x")}, "", false},
		{"ignores other documents", []listingRow{{title: "Financial Report 2023"}}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectAIS(tt.rows)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.title)
		})
	}
}

func TestFinancialReportLookup(t *testing.T) {
	idx := financialReportIndex([]listingRow{
		{title: "Annual Information Statement 2023", link: "https://example.org/ais"},
		{title: "Financial Report 2023", link: ""},
		{title: "Financial Report 2023 (amended)", link: "https://example.org/amended"},
		{title: "Financial Report 2021-22", link: "https://example.org/2021-22"},
		{title: "Financial Report"},
	})
	require.Len(t, idx, 3)

	tests := []struct {
		year     string
		wantLink string
		wantOK   bool
	}{
		{"2023", "", true},
		{"2021", "https://example.org/2021-22", true},
		{"2021-22", "https://example.org/2021-22", true},
		{"2020", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.year, func(t *testing.T) {
			link, ok := idx.lookup(tt.year)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLink, link)
		})
	}
}

func TestURLs(t *testing.T) {
	e := New(testConfig(), nil)
	assert.Equal(t, searchURL, e.SearchURL(abn))
	assert.Equal(t, documentURL, DocumentsURL(profileURL))

	got, err := resolve(documentURL, "fr-2023")
	require.NoError(t, err)
	assert.Equal(t, reportURL, got)

	got, err = resolve(documentURL, "https://cdn.example.org/ais.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/ais.pdf", got)
}
