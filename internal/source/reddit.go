package source

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/coverage-cli/internal/model"
)

const defaultRedditLimit = 5

// Reddit searches reddit.com through its public JSON listing. Only the
// first page is requested; the listing cursor is not followed.
type Reddit struct {
	site
	limit int
}

func newReddit(name, base string, opts Options) (Adapter, error) {
	s, err := newSite(name, base)
	if err != nil {
		return nil, err
	}
	limit := opts.ResultLimit
	if limit <= 0 {
		limit = defaultRedditLimit
	}
	return &Reddit{site: s, limit: limit}, nil
}

func (r *Reddit) RequiresAuthenticatedSession() bool { return false }

func (r *Reddit) BuildRequest(query string, page int) (FetchSpec, error) {
	if err := checkRequest(r.name, query, page); err != nil {
		return FetchSpec{}, err
	}
	if page > 1 {
		return FetchSpec{}, ErrNoMorePages
	}
	u := *r.base
	u.Path += "/search.json"
	u.RawQuery = url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(r.limit)},
		"sort":  {"relevance"},
		"type":  {"link"},
	}.Encode()
	return FetchSpec{
		URL:     u.String(),
		Headers: map[string]string{"Accept": "application/json"},
	}, nil
}

type redditListing struct {
	Kind string `json:"kind"`
	Data *struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Thumbnail   string  `json:"thumbnail"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (r *Reddit) ParsePage(raw []byte) ([]model.Record, error) {
	var listing redditListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, &ParseError{Source: r.name, Reason: "decode listing: " + err.Error()}
	}
	if listing.Kind != "Listing" || listing.Data == nil {
		return nil, missingStructure(r.name, "Listing.data")
	}

	recs := make([]model.Record, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		link := p.URL
		if link == "" {
			link = p.Permalink
		}
		rec := model.Record{
			Title:    title,
			Link:     r.abs(link),
			Author:   p.Author,
			Score:    model.IntPtr(p.Score),
			Comments: model.IntPtr(p.NumComments),
		}
		if p.Subreddit != "" {
			rec.Category = "r/" + p.Subreddit
		}
		if p.CreatedUTC > 0 {
			rec.Date = time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339)
		}
		if strings.HasPrefix(p.Thumbnail, "http") {
			rec.Image = p.Thumbnail
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
