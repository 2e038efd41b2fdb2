// Package extractor turns one ABN into one CharityRecord by walking the
// charity register: search, documents listing, then the chosen AIS.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/metrics"
	"github.com/use-agent/charitybot/models"
)

type state int

const (
	stateProfileLookup state = iota
	stateAISDiscovery
	stateFinancialExtraction
	stateDone
)

func (s state) String() string {
	switch s {
	case stateProfileLookup:
		return "profile_lookup"
	case stateAISDiscovery:
		return "ais_discovery"
	case stateFinancialExtraction:
		return "financial_extraction"
	default:
		return "done"
	}
}

// Extractor runs the three-stage lookup. It holds no per-identifier state and
// may be shared by every worker.
type Extractor struct {
	cfg     config.RegistryConfig
	metrics *metrics.Metrics
}

// New creates an Extractor for the register described by cfg.
func New(cfg config.RegistryConfig, m *metrics.Metrics) *Extractor {
	return &Extractor{cfg: cfg, metrics: m}
}

// Extract looks up abn on s. A stage that times out ends the walk and the
// record is returned with whatever was found so far. Any other error (failed
// navigation, dead session, cancelled ctx) is returned and the record is
// discarded.
func (e *Extractor) Extract(ctx context.Context, s engine.Session, abn string) (models.CharityRecord, error) {
	rec := models.NewCharityRecord(abn)
	logger := slog.With("abn", abn)
	start := time.Now()

	st := stateProfileLookup
	for st != stateDone {
		var (
			next state
			err  error
		)
		switch st {
		case stateProfileLookup:
			next, err = e.lookupProfile(ctx, s, &rec)
		case stateAISDiscovery:
			next, err = e.discoverAIS(ctx, s, &rec)
		case stateFinancialExtraction:
			next, err = e.extractFinancials(ctx, s, &rec)
		}

		if err != nil {
			var ee *models.ExtractError
			if errors.As(err, &ee) && isStageTimeout(ee.Code) {
				logger.Info("stage timed out, finalizing record", "stage", st.String(), "code", ee.Code)
				e.metrics.IncrementStageTimeout(ee.Code)
				break
			}
			return models.CharityRecord{}, err
		}
		st = next
	}

	logger.Debug("record finalized",
		"outcome", rec.Outcome(),
		"non_reporting", rec.NonReporting,
		"financials", len(rec.Financials),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return rec, nil
}

// AsFunc adapts the extractor to the dispatcher's callback shape.
func (e *Extractor) AsFunc() engine.ExtractFunc {
	return e.Extract
}

func isStageTimeout(code string) bool {
	switch code {
	case models.ErrCodeLookupTimeout, models.ErrCodeListingTimeout, models.ErrCodeExtractionTimeout:
		return true
	}
	return false
}

// navigate loads target under the navigation budget. When timeoutCode is
// set, running out of that budget is reported as the stage timeout
// timeoutCode; otherwise every failure is NAVIGATION_FAILED.
func (e *Extractor) navigate(ctx context.Context, s engine.Session, target, timeoutCode string) error {
	navCtx := ctx
	if e.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, e.cfg.NavigationTimeout)
		defer cancel()
	}
	err := s.Navigate(navCtx, target)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case timeoutCode != "" && errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return models.NewExtractError(timeoutCode,
			target+" did not load within "+e.cfg.NavigationTimeout.String(), err)
	default:
		return models.NewExtractError(models.ErrCodeNavigation, "navigate to "+target, err)
	}
}

// wait runs a bounded stage wait, mapping the ceiling to code.
func (e *Extractor) wait(ctx context.Context, s engine.Session, cond engine.Condition, code string) error {
	err := s.WaitUntil(ctx, cond, e.cfg.StageTimeout)
	if errors.Is(err, engine.ErrWaitTimeout) {
		return models.NewExtractError(code, "element did not appear within "+e.cfg.StageTimeout.String(), err)
	}
	return err
}

// present is a wait condition satisfied once selector matches anything.
func present(s engine.Session, selector string) engine.Condition {
	return func(ctx context.Context) (bool, error) {
		els, err := s.Query(ctx, selector)
		if err != nil {
			return false, err
		}
		return len(els) > 0, nil
	}
}

// resolve makes href absolute against the current page.
func resolve(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("extractor: bad link %q: %w", href, err)
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return ref.String(), nil
	}
	return b.ResolveReference(ref).String(), nil
}

// cellTexts returns the trimmed text of every td of a row.
func cellTexts(cells []engine.Element) ([]string, error) {
	out := make([]string, len(cells))
	for i, c := range cells {
		t, err := c.Text()
		if err != nil {
			return nil, err
		}
		out[i] = strings.TrimSpace(t)
	}
	return out, nil
}
