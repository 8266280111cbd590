package source

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/coverage-cli/internal/model"
)

// Inc42 scrapes inc42.com search, served by a client-side search widget
// for logged-in readers.
type Inc42 struct {
	site
}

func newInc42(name, base string, _ Options) (Adapter, error) {
	s, err := newSite(name, base)
	if err != nil {
		return nil, err
	}
	return &Inc42{site: s}, nil
}

func (i *Inc42) RequiresAuthenticatedSession() bool { return true }

func (i *Inc42) BuildRequest(query string, page int) (FetchSpec, error) {
	if err := checkRequest(i.name, query, page); err != nil {
		return FetchSpec{}, err
	}
	return FetchSpec{URL: i.searchURL(query, page), Render: true, Settle: time.Second}, nil
}

func (i *Inc42) ParsePage(raw []byte) ([]model.Record, error) {
	doc, err := parseDoc(i.name, raw)
	if err != nil {
		return nil, err
	}

	hits := doc.Find("ol.ais-Hits-list").First()
	if hits.Length() == 0 {
		if noResults(doc) || doc.Find("div.ais-Hits--empty").Length() > 0 {
			return nil, nil
		}
		return nil, missingStructure(i.name, "ol.ais-Hits-list")
	}

	var recs []model.Record
	hits.Find("li.ais-Hits-item").Each(func(_ int, item *goquery.Selection) {
		content := item.Find("div.ais-hits--content").First()
		a := content.Find("h2.entry-title a").First()
		rec := model.Record{
			Title: text(a),
			Link:  i.abs(a.AttrOr("href", "")),
			Date:  text(content.Find("div.meta-wrapper span.date").First()),
		}
		if rec.Title == "" {
			return
		}
		rec.Category = inc42Category(rec.Link)
		recs = append(recs, rec)
	})
	return recs, nil
}

// inc42Category derives the section from the article path.
func inc42Category(link string) string {
	switch {
	case strings.Contains(link, "/buzz/"):
		return "Buzz"
	case strings.Contains(link, "/features/"):
		return "Features"
	case strings.Contains(link, "/startups/"):
		return "Startups"
	default:
		return "Stories"
	}
}

func (i *Inc42) NeedsExcerpt(rec model.Record) bool {
	return rec.Link != "" && rec.Excerpt == ""
}

func (i *Inc42) ExcerptRequest(rec model.Record) (FetchSpec, error) {
	return FetchSpec{URL: rec.Link, Render: true, Settle: 500 * time.Millisecond}, nil
}

func (i *Inc42) ParseExcerpt(raw []byte, link string) string {
	return ExtractExcerpt(raw, link, "div.post-content")
}
