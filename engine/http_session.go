package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoPage is returned when a session is queried before any navigation.
var ErrNoPage = errors.New("engine: no page loaded")

// Fetcher retrieves a page body and the final URL after redirects.
type Fetcher func(ctx context.Context, url string) (body []byte, finalURL string, err error)

// HTTPSession is a Session without a browser: each navigation fetches the
// page and parses it into a DOM. Pages that render their content with
// JavaScript will never satisfy a wait on this backend.
type HTTPSession struct {
	fetch        Fetcher
	pollInterval time.Duration
	selectors    *selectorCache

	doc *goquery.Document
	url string
}

var _ Session = (*HTTPSession)(nil)

// NewHTTPSession creates an HTTPSession using fetch for every navigation.
func NewHTTPSession(fetch Fetcher, pollInterval time.Duration) *HTTPSession {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &HTTPSession{
		fetch:        fetch,
		pollInterval: pollInterval,
		selectors:    newSelectorCache(),
	}
}

// NewStaticSession serves pages from memory, keyed by exact URL. Unknown
// URLs fail navigation. It is the fixture backend for tests and dry runs.
func NewStaticSession(pages map[string]string, pollInterval time.Duration) *HTTPSession {
	fetch := func(ctx context.Context, url string) ([]byte, string, error) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		body, ok := pages[url]
		if !ok {
			return nil, "", fmt.Errorf("static session: no page for %s", url)
		}
		return []byte(body), url, nil
	}
	return NewHTTPSession(fetch, pollInterval)
}

func (s *HTTPSession) Navigate(ctx context.Context, url string) error {
	body, finalURL, err := s.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("http_session: navigate %s: %w", url, err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http_session: parse %s: %w", url, err)
	}
	s.doc = goquery.NewDocumentFromNode(root)
	s.url = finalURL
	if s.url == "" {
		s.url = url
	}
	return nil
}

func (s *HTTPSession) WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error {
	return Poll(ctx, cond, timeout, s.pollInterval)
}

func (s *HTTPSession) Query(_ context.Context, selector string) ([]Element, error) {
	if s.doc == nil {
		return nil, ErrNoPage
	}
	return findAll(s.doc.Selection, selector, s.selectors)
}

func (s *HTTPSession) URL() string { return s.url }

func (s *HTTPSession) Close() error {
	s.doc = nil
	return nil
}
