package source

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// site carries what every adapter needs: its lane name and origin.
type site struct {
	name string
	base *url.URL
}

func newSite(name, base string) (site, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return site{}, eris.Errorf("source: %s: invalid base url %q", name, base)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return site{name: name, base: u}, nil
}

func (s site) Name() string    { return s.name }
func (s site) BaseURL() string { return s.base.String() }

// abs resolves href against the site origin. Empty input stays empty.
func (s site) abs(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.base.ResolveReference(ref).String()
}

// searchURL builds the WordPress-style search URL shared by several sites:
// /?s=q for the first page and /page/N/?s=q after it.
func (s site) searchURL(query string, page int) string {
	u := *s.base
	if page > 1 {
		u.Path = u.Path + "/page/" + strconv.Itoa(page) + "/"
	} else {
		u.Path = u.Path + "/"
	}
	u.RawQuery = url.Values{"s": {query}}.Encode()
	return u.String()
}

func checkRequest(name, query string, page int) error {
	if strings.TrimSpace(query) == "" {
		return eris.Errorf("source: %s: empty query", name)
	}
	if page < 1 {
		return eris.Errorf("source: %s: invalid page %d", name, page)
	}
	return nil
}

func parseDoc(name string, raw []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Source: name, Reason: err.Error()}
	}
	return doc, nil
}

// noResults reports whether a WordPress search page says it found nothing.
func noResults(doc *goquery.Document) bool {
	return doc.Find("body.search-no-results").Length() > 0
}

// text returns the selection's text with whitespace collapsed.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// ExtractExcerpt reads an article's summary: the meta description, else the
// first paragraph inside container, else the readability excerpt, else "".
func ExtractExcerpt(raw []byte, link, container string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	if desc := strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")); desc != "" {
		return desc
	}

	if container != "" {
		if p := text(doc.Find(container).First().Find("p").First()); p != "" {
			return p
		}
	}

	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		zap.L().Debug("source: readability failed", zap.String("link", link), zap.Error(err))
		return ""
	}
	return strings.Join(strings.Fields(article.Excerpt), " ")
}
