package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/models"
	"github.com/ysmood/gson"
)

// RodSession is an engine.Session driving one Chromium tab.
// Like every Session it belongs to a single worker.
type RodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when attached to a shared browser
	page     *rod.Page
	router   *rod.HijackRouter

	pollInterval time.Duration
}

var _ engine.Session = (*RodSession)(nil)

// NewSessionFactory returns the factory workers use to open their session.
func NewSessionFactory(cfg config.BrowserConfig, pollInterval time.Duration) engine.SessionFactory {
	return func(ctx context.Context) (engine.Session, error) {
		return NewRodSession(ctx, cfg, pollInterval)
	}
}

// NewRodSession opens a browser tab prepared for the register: stealth
// script, resource blocking and English content negotiation are installed
// before the first navigation.
func NewRodSession(ctx context.Context, cfg config.BrowserConfig, pollInterval time.Duration) (*RodSession, error) {
	browser, l, err := openBrowser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &RodSession{browser: browser, launcher: l, pollInterval: pollInterval}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, models.NewExtractError(models.ErrCodeSessionInit, "failed to open tab", err)
	}
	s.page = page

	if cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if err := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-AU,en;q=0.9"}),
	}).Call(page); err != nil {
		slog.Debug("extra headers not set", "error", err)
	}

	s.router = setupHijack(page, cfg.BlockedResourceTypes, cfg.BlockTrackers)
	return s, nil
}

// Navigate returns once the new document has fired DOMContentLoaded, so
// queries never see the previous page.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	err := navigateAndSettle(ctx,
		func() func() { return page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded) },
		func() error { return page.Navigate(url) },
	)
	if err != nil {
		return categorizeError(err, "navigation to "+url+" failed")
	}
	return nil
}

// navigateAndSettle arms the load waiter before navigating, then blocks on
// it. The waiter must exist first or a fast load is missed.
func navigateAndSettle(ctx context.Context, arm func() func(), navigate func() error) error {
	settled := arm()
	if err := navigate(); err != nil {
		return err
	}
	settled()
	return ctx.Err()
}

func (s *RodSession) WaitUntil(ctx context.Context, cond engine.Condition, timeout time.Duration) error {
	return engine.Poll(ctx, cond, timeout, s.pollInterval)
}

// Query does not wait: an empty result is returned as soon as the current
// DOM has no match.
func (s *RodSession) Query(ctx context.Context, selector string) ([]engine.Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (s *RodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close stops interception, closes the tab and, for a launched browser,
// kills Chromium and removes its profile directory.
func (s *RodSession) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Stop())
	}
	if s.launcher == nil {
		// Shared browser: only our tab goes.
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		return errors.Join(errs...)
	}
	errs = append(errs, s.browser.Close())
	s.launcher.Kill()
	s.launcher.Cleanup()
	return errors.Join(errs...)
}

// rodElement adapts a rod element to engine.Element.
type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []engine.Element {
	out := make([]engine.Element, len(els))
	for i, el := range els {
		out[i] = rodElement{el: el}
	}
	return out
}

func (e rodElement) Tag() (string, error) {
	v, err := e.el.Property("tagName")
	if err != nil {
		return "", err
	}
	return strings.ToLower(v.Str()), nil
}

func (e rodElement) Text() (string, error) {
	t, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(t), " "), nil
}

func (e rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e rodElement) Query(selector string) ([]engine.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw rod errors so the worker log carries a code.
func categorizeError(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewExtractError(models.ErrCodeNavigation, msg+" (timed out)", err)
	default:
		return models.NewExtractError(models.ErrCodeNavigation, msg, err)
	}
}
