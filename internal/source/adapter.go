// Package source defines how coverage is fetched and parsed from one
// external site, plus the concrete site adapters and the fetchers they run
// on.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/coverage-cli/internal/model"
)

// ErrNoMorePages is returned by BuildRequest when the adapter has no page
// beyond the ones already requested.
var ErrNoMorePages = errors.New("source: no more pages")

// FetchSpec describes one page request.
type FetchSpec struct {
	URL     string
	Headers map[string]string

	// Render asks for client-side scripts to run before the document is
	// read. Only the browser fetcher honours it.
	Render bool
	// Settle is how long a rendered page is given after load.
	Settle time.Duration
	// Scrolls triggers lazy loading by scrolling one viewport this many
	// times.
	Scrolls int
}

// Adapter turns a query into page requests and pages into records for one
// source. Implementations hold the site's selectors; callers never see them.
type Adapter interface {
	Name() string
	// BaseURL is the origin relative links are resolved against.
	BaseURL() string
	BuildRequest(query string, page int) (FetchSpec, error)
	// ParsePage returns the page's records. An empty result with a nil
	// error means there are no more pages. A page missing its expected
	// structure yields a *ParseError.
	ParsePage(raw []byte) ([]model.Record, error)
	RequiresAuthenticatedSession() bool
}

// ExcerptResolver is implemented by adapters whose listing pages omit the
// excerpt, which must then be read from each article.
type ExcerptResolver interface {
	NeedsExcerpt(rec model.Record) bool
	ExcerptRequest(rec model.Record) (FetchSpec, error)
	// ParseExcerpt never fails; an article without a usable excerpt
	// yields "".
	ParseExcerpt(raw []byte, link string) string
}

// Fetcher retrieves the raw body for a request.
type Fetcher interface {
	Fetch(ctx context.Context, spec FetchSpec) ([]byte, error)
	Close() error
}
