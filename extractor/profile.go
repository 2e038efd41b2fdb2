package extractor

import (
	"context"
	"net/url"

	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/models"
)

// profileLinkSelector matches a search result pointing at a charity profile.
const profileLinkSelector = `a[href*="/charity/charities/"][href*="/profile"]`

// SearchURL returns the search page for abn.
func (e *Extractor) SearchURL(abn string) string {
	return e.cfg.SearchURL() + "?search=" + url.QueryEscape(abn)
}

// lookupProfile finds the profile link for rec.ABN. A search page that does
// not load in time counts as a lookup timeout, not a dead session.
func (e *Extractor) lookupProfile(ctx context.Context, s engine.Session, rec *models.CharityRecord) (state, error) {
	if err := e.navigate(ctx, s, e.SearchURL(rec.ABN), models.ErrCodeLookupTimeout); err != nil {
		return stateDone, err
	}
	if err := e.wait(ctx, s, present(s, profileLinkSelector), models.ErrCodeLookupTimeout); err != nil {
		return stateDone, err
	}

	links, err := s.Query(ctx, profileLinkSelector)
	if err != nil {
		return stateDone, err
	}
	if len(links) == 0 {
		return stateDone, nil
	}
	href, ok, err := links[0].Attribute("href")
	if err != nil || !ok {
		return stateDone, err
	}
	profile, err := resolve(s.URL(), href)
	if err != nil {
		return stateDone, err
	}
	rec.ProfileURL = models.Str(profile)
	return stateAISDiscovery, nil
}
