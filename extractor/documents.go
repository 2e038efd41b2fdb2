package extractor

import (
	"context"
	"strings"

	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/models"
)

const (
	aisTitle             = "Annual Information Statement"
	financialReportTitle = "Financial Report "
)

// Statuses that rule a listing row out as the current AIS.
var skippedStatuses = []string{"Not yet submitted", "Pending", "Overdue"}

const notRequiredStatus = "Not required"

// DocumentsURL derives the documents listing from a profile URL.
func DocumentsURL(profile string) string {
	return strings.ReplaceAll(profile, "/profile", "/documents")
}

// listingRow is one row of the documents table with at least four cells.
type listingRow struct {
	title    string
	due      string
	received string // doubles as the lodgement status
	link     string // resolved href of the first link in the fourth cell
}

func (e *Extractor) discoverAIS(ctx context.Context, s engine.Session, rec *models.CharityRecord) (state, error) {
	if err := e.navigate(ctx, s, DocumentsURL(*rec.ProfileURL), ""); err != nil {
		return stateDone, err
	}
	if err := e.wait(ctx, s, present(s, "tbody tr"), models.ErrCodeListingTimeout); err != nil {
		return stateDone, err
	}

	rows, err := e.readListing(ctx, s)
	if err != nil {
		return stateDone, err
	}

	reports := financialReportIndex(rows)
	ais, found := selectAIS(rows)
	if !found {
		return stateDone, nil
	}

	fields := strings.Fields(ais.title)
	year := fields[len(fields)-1]
	rec.AISYear = models.Str(year)
	rec.DueDate = models.Str(ais.due)
	rec.DateReceived = models.Str(ais.received)
	rec.NonReporting = false
	if ais.link != "" {
		rec.AISDocumentURL = models.Str(ais.link)
	}
	if link, _ := reports.lookup(year); link != "" {
		rec.FinancialReportURL = models.Str(link)
	}

	if rec.AISDocumentURL == nil {
		return stateDone, nil
	}
	return stateFinancialExtraction, nil
}

// readListing parses every row of the listing once.
func (e *Extractor) readListing(ctx context.Context, s engine.Session) ([]listingRow, error) {
	trs, err := s.Query(ctx, "tbody tr")
	if err != nil {
		return nil, err
	}
	base := s.URL()

	rows := make([]listingRow, 0, len(trs))
	for _, tr := range trs {
		cells, err := tr.Query("td")
		if err != nil {
			return nil, err
		}
		if len(cells) < 4 {
			continue
		}
		texts, err := cellTexts(cells[:3])
		if err != nil {
			return nil, err
		}
		row := listingRow{title: texts[0], due: texts[1], received: texts[2]}

		links, err := cells[3].Query("a")
		if err != nil {
			return nil, err
		}
		if len(links) > 0 {
			if href, ok, err := links[0].Attribute("href"); err != nil {
				return nil, err
			} else if ok {
				if row.link, err = resolve(base, href); err != nil {
					return nil, err
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// selectAIS picks the most recent lodged AIS: the first AIS row in listing
// order whose status is neither skipped nor "Not required". A "Not required"
// row ends the search with nothing found.
func selectAIS(rows []listingRow) (listingRow, bool) {
	for _, row := range rows {
		if !strings.Contains(row.title, aisTitle) {
			continue
		}
		if containsAny(row.received, skippedStatuses) {
			continue
		}
		if strings.Contains(row.received, notRequiredStatus) {
			return listingRow{}, false
		}
		return row, true
	}
	return listingRow{}, false
}

// reportIndex holds the financial report rows of a listing, in listing order.
type reportIndex []listingRow

// financialReportIndex collects every "Financial Report" row in one pass.
func financialReportIndex(rows []listingRow) reportIndex {
	var idx reportIndex
	for _, row := range rows {
		if strings.Contains(row.title, financialReportTitle) {
			idx = append(idx, row)
		}
	}
	return idx
}

// lookup returns the link of the first row whose title contains
// "Financial Report <year>", so "Financial Report 2023-24" answers 2023.
// ok is true when such a row exists, even if it has no link.
func (idx reportIndex) lookup(year string) (link string, ok bool) {
	want := financialReportTitle + year
	for _, row := range idx {
		if strings.Contains(row.title, want) {
			return row.link, true
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
