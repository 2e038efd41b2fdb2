package engine

import (
	"context"
	"time"

	"github.com/use-agent/charitybot/models"
)

// Session is the page-rendering capability a worker drives. Implementations
// are not safe for concurrent use: one worker owns one session and has at
// most one identifier in flight on it.
type Session interface {
	// Navigate loads url and makes it the current page.
	Navigate(ctx context.Context, url string) error

	// WaitUntil polls cond until it reports true or timeout elapses.
	// It returns ErrWaitTimeout when the ceiling is hit.
	WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error

	// Query returns the elements of the current page matching a CSS
	// selector, in document order. No match is not an error.
	Query(ctx context.Context, selector string) ([]Element, error)

	// URL returns the address of the current page (after redirects).
	URL() string

	// Close releases the session and everything it owns.
	Close() error
}

// Element is a node of the current page.
type Element interface {
	// Tag returns the lower-case element name.
	Tag() (string, error)

	// Text returns the element's visible text with whitespace collapsed.
	Text() (string, error)

	// Attribute returns the raw attribute value and whether it is present.
	Attribute(name string) (string, bool, error)

	// Query returns descendants matching a CSS selector, in document order.
	Query(selector string) ([]Element, error)
}

// Condition is evaluated on every poll of WaitUntil.
type Condition func(ctx context.Context) (bool, error)

// SessionFactory builds the session a worker owns for its whole lifetime.
type SessionFactory func(ctx context.Context) (Session, error)

// ExtractFunc turns one identifier into one record using the worker's
// session. It is injected from main.go so engine/ never imports extractor/.
type ExtractFunc func(ctx context.Context, s Session, abn string) (models.CharityRecord, error)
