package source

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/coverage-cli/internal/model"
)

// FactorDaily scrapes factordaily.com search listings, which include the
// excerpt inline.
type FactorDaily struct {
	site
}

func newFactorDaily(name, base string, _ Options) (Adapter, error) {
	s, err := newSite(name, base)
	if err != nil {
		return nil, err
	}
	return &FactorDaily{site: s}, nil
}

func (f *FactorDaily) RequiresAuthenticatedSession() bool { return false }

func (f *FactorDaily) BuildRequest(query string, page int) (FetchSpec, error) {
	if err := checkRequest(f.name, query, page); err != nil {
		return FetchSpec{}, err
	}
	return FetchSpec{URL: f.searchURL(query, page)}, nil
}

func (f *FactorDaily) ParsePage(raw []byte) ([]model.Record, error) {
	doc, err := parseDoc(f.name, raw)
	if err != nil {
		return nil, err
	}

	list := doc.Find("div.search-post-list").First()
	if list.Length() == 0 {
		if noResults(doc) {
			return nil, nil
		}
		return nil, missingStructure(f.name, "div.search-post-list")
	}

	var recs []model.Record
	list.Find("div.single").Each(func(_ int, post *goquery.Selection) {
		titleLink := post.Find("h3 a").First()
		rec := model.Record{
			Title:    text(titleLink),
			Link:     f.abs(titleLink.AttrOr("href", "")),
			Image:    f.abs(post.Find("div.img-div a img").First().AttrOr("src", "")),
			Category: text(post.Find("div.category-div a").First()),
			Date:     text(post.Find("div.date").First()),
			Excerpt:  text(post.Find("div.excerpt").First()),
			Author:   text(post.Find("div.author-div a").First()),
		}
		if rec.Title != "" {
			recs = append(recs, rec)
		}
	})
	return recs, nil
}
