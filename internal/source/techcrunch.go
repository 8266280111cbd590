package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/coverage-cli/internal/model"
)

// TechCrunch scrapes techcrunch.com search listings. Listings carry no
// excerpt, so each article is visited for one.
type TechCrunch struct {
	site
}

func newTechCrunch(name, base string, _ Options) (Adapter, error) {
	s, err := newSite(name, base)
	if err != nil {
		return nil, err
	}
	return &TechCrunch{site: s}, nil
}

func (t *TechCrunch) RequiresAuthenticatedSession() bool { return false }

func (t *TechCrunch) BuildRequest(query string, page int) (FetchSpec, error) {
	if err := checkRequest(t.name, query, page); err != nil {
		return FetchSpec{}, err
	}
	return FetchSpec{URL: t.searchURL(query, page)}, nil
}

func (t *TechCrunch) ParsePage(raw []byte) ([]model.Record, error) {
	doc, err := parseDoc(t.name, raw)
	if err != nil {
		return nil, err
	}

	list := doc.Find("ul.wp-block-post-template").First()
	if list.Length() == 0 {
		if noResults(doc) {
			return nil, nil
		}
		return nil, missingStructure(t.name, "ul.wp-block-post-template")
	}

	var recs []model.Record
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		card := li.Find("div.wp-block-techcrunch-card div.loop-card").First()
		content := card.Find("div.loop-card__content").First()
		if content.Length() == 0 {
			return
		}

		titleLink := content.Find("h3.loop-card__title a.loop-card__title-link").First()
		rec := model.Record{
			Title:    text(titleLink),
			Link:     t.abs(titleLink.AttrOr("href", "")),
			Date:     text(content.Find("time").First()),
			Category: text(content.Find("div.loop-card__cat-group .loop-card__cat").First()),
			Image:    t.abs(card.Find("figure.loop-card__figure img").First().AttrOr("src", "")),
		}
		if rec.Title == "" {
			return
		}

		var authors []string
		content.Find("div.loop-card__meta ul.loop-card__meta-item a.loop-card__author").Each(func(_ int, a *goquery.Selection) {
			if name := text(a); name != "" {
				authors = append(authors, name)
			}
		})
		rec.Author = strings.Join(authors, ", ")

		recs = append(recs, rec)
	})
	return recs, nil
}

func (t *TechCrunch) NeedsExcerpt(rec model.Record) bool {
	return rec.Link != "" && rec.Excerpt == ""
}

func (t *TechCrunch) ExcerptRequest(rec model.Record) (FetchSpec, error) {
	return FetchSpec{URL: rec.Link}, nil
}

func (t *TechCrunch) ParseExcerpt(raw []byte, link string) string {
	return ExtractExcerpt(raw, link, "div.article-content")
}
