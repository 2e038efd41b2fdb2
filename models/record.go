package models

import "strings"

// FinancialItem is the canonical name of one line item in the
// "Income and Expenses" / balance sheet tables of an AIS.
type FinancialItem string

// FinancialItems is the closed, ordered catalogue of line items captured from
// an AIS. Label matching walks this slice in order, so the order is part of
// the extraction behaviour.
var FinancialItems = []FinancialItem{
	"Revenue from government including grants",
	"Donations and bequests",
	"Revenue from providing goods or services",
	"Revenue from investments",
	"All other revenue",
	"Total revenue",
	"Other income (for example, gains)",
	"Total gross income",
	"Employee expenses",
	"Interest expenses",
	"Grants and donations made for use in Australia",
	"Grants and donations made for use outside Australia",
	"All other expenses",
	"Total expenses",
	"Net surplus/(deficit)",
	"Other comprehensive income",
	"Total comprehensive income",
	"Total current assets",
	"Non-current loans receivable",
	"Other non-current assets",
	"Total non-current assets",
	"Total assets",
	"Total current liabilities",
	"Non-current loans payable",
	"Other non-current liabilities",
	"Total non-current liabilities",
	"Total liabilities",
	"Net assets/liabilities",
}

// MatchesLabel reports whether the item name occurs in label, ignoring case.
func (f FinancialItem) MatchesLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), strings.ToLower(string(f)))
}

// Financials holds the text-encoded values found for each line item.
// Items that were never found are absent from the map.
type Financials map[FinancialItem]string

// Get returns the value for item and whether it was found.
func (f Financials) Get(item FinancialItem) (string, bool) {
	v, ok := f[item]
	return v, ok
}

// CharityRecord is the output of extracting one ABN.
//
// Optional fields are nil until the stage that owns them succeeds; nothing is
// cleared once set.
type CharityRecord struct {
	ABN                string     `json:"abn"`
	ProfileURL         *string    `json:"profile_url"`
	AISYear            *string    `json:"ais_year"`
	DueDate            *string    `json:"due_date"`
	DateReceived       *string    `json:"date_received"`
	AISDocumentURL     *string    `json:"ais_url"`
	NonReporting       bool       `json:"non_reporting"`
	FinancialReportURL *string    `json:"financial_report_url"`
	Financials         Financials `json:"financials"`
}

// NewCharityRecord returns the initial record for abn: nothing found yet,
// flagged non-reporting.
func NewCharityRecord(abn string) CharityRecord {
	return CharityRecord{
		ABN:          abn,
		NonReporting: true,
		Financials:   make(Financials),
	}
}

// Str returns a pointer to a copy of s, for populating optional fields.
func Str(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Record outcomes, by the last stage that produced data.
const (
	OutcomeNotFound    = "not_found"    // no profile link for the ABN
	OutcomeProfileOnly = "profile_only" // profile found, no usable AIS
	OutcomeAISOnly     = "ais_only"     // AIS metadata, no financial values
	OutcomeComplete    = "complete"     // at least one financial value
)

// Outcome classifies how far extraction got for rec.
func (rec CharityRecord) Outcome() string {
	switch {
	case rec.ProfileURL == nil:
		return OutcomeNotFound
	case rec.AISYear == nil:
		return OutcomeProfileOnly
	case len(rec.Financials) == 0:
		return OutcomeAISOnly
	default:
		return OutcomeComplete
	}
}
