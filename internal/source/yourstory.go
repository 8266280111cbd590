package source

import (
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/coverage-cli/internal/model"
)

// YourStory result markup uses generated class names; these track the
// current build of the site.
const (
	ysContainer = "section.container-results"
	ysItem      = "li.sc-c9f6afaa-0"
	ysDate      = "span.sc-36431a7-0.dpmmXH"
	ysCategory  = "div.sc-c9f6afaa-10.jqCVBY span"
)

// YourStory scrapes yourstory.com search, which is rendered client-side and
// gated behind a login.
type YourStory struct {
	site
	scrolls int
}

func newYourStory(name, base string, opts Options) (Adapter, error) {
	s, err := newSite(name, base)
	if err != nil {
		return nil, err
	}
	return &YourStory{site: s, scrolls: opts.Scrolls}, nil
}

func (y *YourStory) RequiresAuthenticatedSession() bool { return true }

func (y *YourStory) BuildRequest(query string, page int) (FetchSpec, error) {
	if err := checkRequest(y.name, query, page); err != nil {
		return FetchSpec{}, err
	}
	u := *y.base
	u.Path += "/search"
	u.RawQuery = url.Values{"q": {query}, "page": {strconv.Itoa(page)}}.Encode()
	return FetchSpec{
		URL:     u.String(),
		Render:  true,
		Settle:  5 * time.Second,
		Scrolls: y.scrolls,
	}, nil
}

func (y *YourStory) ParsePage(raw []byte) ([]model.Record, error) {
	doc, err := parseDoc(y.name, raw)
	if err != nil {
		return nil, err
	}

	container := doc.Find(ysContainer).First()
	if container.Length() == 0 {
		return nil, missingStructure(y.name, ysContainer)
	}

	var recs []model.Record
	container.Find(ysItem).Each(func(_ int, item *goquery.Selection) {
		var rec model.Record
		item.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			span := a.Find("span").First()
			if t := text(span); t != "" {
				rec.Title = t
				rec.Link = y.abs(a.AttrOr("href", ""))
				return false
			}
			return true
		})
		if rec.Title == "" {
			return
		}
		rec.Date = text(item.Find(ysDate).First())
		rec.Category = text(item.Find(ysCategory).First())
		recs = append(recs, rec)
	})
	return recs, nil
}

func (y *YourStory) NeedsExcerpt(rec model.Record) bool {
	return rec.Link != "" && rec.Excerpt == ""
}

func (y *YourStory) ExcerptRequest(rec model.Record) (FetchSpec, error) {
	return FetchSpec{URL: rec.Link, Render: true, Settle: 2 * time.Second}, nil
}

func (y *YourStory) ParseExcerpt(raw []byte, link string) string {
	return ExtractExcerpt(raw, link, "article")
}
