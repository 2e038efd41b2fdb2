package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// trackerDomains are third-party hosts the register pages pull in that
// contribute nothing to the listing or AIS markup.
var trackerDomains = map[string]struct{}{
	"google-analytics.com":     {},
	"googletagmanager.com":     {},
	"doubleclick.net":          {},
	"googleadservices.com":     {},
	"facebook.net":             {},
	"hotjar.com":               {},
	"clarity.ms":               {},
	"siteimprove.com":          {},
	"siteimproveanalytics.com": {},
	"youtube.com":              {},
	"vimeo.com":                {},
}

// isTrackerHost reports whether host or one of its parent domains is listed.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

// blockPlan is the per-request decision table built from config.
type blockPlan struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlockPlan(blockedTypes []string, blockTrackers bool) blockPlan {
	p := blockPlan{
		types:    make(map[proto.NetworkResourceType]struct{}, len(blockedTypes)),
		trackers: blockTrackers,
	}
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			p.types[rt] = struct{}{}
		}
	}
	return p
}

func (p blockPlan) empty() bool {
	return len(p.types) == 0 && !p.trackers
}

func (p blockPlan) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := p.types[rt]; ok {
		return true
	}
	if p.trackers {
		if u, err := url.Parse(rawURL); err == nil && isTrackerHost(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor that fails blocked requests.
// It returns nil when nothing is blocked; otherwise the caller stops the
// router when the session closes.
func setupHijack(page *rod.Page, blockedTypes []string, blockTrackers bool) *rod.HijackRouter {
	plan := newBlockPlan(blockedTypes, blockTrackers)
	if plan.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if plan.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}
