package engine

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// selectorCache compiles each CSS selector once per session. The extractor
// issues the same handful of selectors for every identifier.
type selectorCache struct {
	mu       sync.Mutex
	compiled map[string]cascadia.Selector
}

func newSelectorCache() *selectorCache {
	return &selectorCache{compiled: make(map[string]cascadia.Selector)}
}

func (c *selectorCache) get(selector string) (cascadia.Selector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sel, ok := c.compiled[selector]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	c.compiled[selector] = sel
	return sel, nil
}

// domElement is an Element backed by a parsed goquery document.
type domElement struct {
	sel       *goquery.Selection
	selectors *selectorCache
}

func (e domElement) Tag() (string, error) {
	return goquery.NodeName(e.sel), nil
}

func (e domElement) Text() (string, error) {
	return collapseSpace(e.sel.Text()), nil
}

func (e domElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e domElement) Query(selector string) ([]Element, error) {
	return findAll(e.sel, selector, e.selectors)
}

func findAll(root *goquery.Selection, selector string, cache *selectorCache) ([]Element, error) {
	sel, err := cache.get(selector)
	if err != nil {
		return nil, err
	}
	matches := root.FindMatcher(sel)
	out := make([]Element, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		out = append(out, domElement{sel: s, selectors: cache})
	})
	return out, nil
}

// collapseSpace approximates innerText: runs of whitespace become one space
// and the ends are trimmed.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
