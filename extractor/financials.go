package extractor

import (
	"context"
	"strings"

	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/models"
)

const incomeHeading = "Income and Expenses"

func (e *Extractor) extractFinancials(ctx context.Context, s engine.Session, rec *models.CharityRecord) (state, error) {
	if err := e.navigate(ctx, s, *rec.AISDocumentURL, ""); err != nil {
		return stateDone, err
	}

	ready := func(ctx context.Context) (bool, error) {
		tables, err := tablesAfterIncomeHeading(ctx, s)
		return len(tables) > 0, err
	}
	if err := e.wait(ctx, s, ready, models.ErrCodeExtractionTimeout); err != nil {
		return stateDone, err
	}

	tables, err := tablesAfterIncomeHeading(ctx, s)
	if err != nil {
		return stateDone, err
	}
	for _, table := range tables {
		rows, err := table.Query("tr")
		if err != nil {
			return stateDone, err
		}
		for _, row := range rows {
			if err := matchRow(row, rec.Financials); err != nil {
				return stateDone, err
			}
		}
	}
	return stateDone, nil
}

// tablesAfterIncomeHeading returns, in document order, every table that
// follows the first h3 mentioning income and expenses.
func tablesAfterIncomeHeading(ctx context.Context, s engine.Session) ([]engine.Element, error) {
	nodes, err := s.Query(ctx, "h3, table")
	if err != nil {
		return nil, err
	}

	var (
		out        []engine.Element
		afterTitle bool
	)
	for _, n := range nodes {
		tag, err := n.Tag()
		if err != nil {
			return nil, err
		}
		if tag == "table" {
			if afterTitle {
				out = append(out, n)
			}
			continue
		}
		if afterTitle {
			continue
		}
		text, err := n.Text()
		if err != nil {
			return nil, err
		}
		afterTitle = strings.Contains(text, incomeHeading)
	}
	return out, nil
}

// matchRow assigns a two-cell row's value to every catalogue item its label
// mentions. Later rows overwrite earlier ones.
func matchRow(row engine.Element, into models.Financials) error {
	cells, err := row.Query("td")
	if err != nil {
		return err
	}
	if len(cells) != 2 {
		return nil
	}
	texts, err := cellTexts(cells)
	if err != nil {
		return err
	}
	label, value := texts[0], texts[1]
	for _, item := range models.FinancialItems {
		if item.MatchesLabel(label) {
			into[item] = value
		}
	}
	return nil
}
