package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONFieldNames(t *testing.T) {
	rec := Record{
		Title:    "Acme raises Series A",
		Link:     "https://example.com/acme",
		Date:     "Jan 2, 2024",
		Category: "Funding",
		Excerpt:  "Acme raised...",
		Author:   "Jane Doe",
		Image:    "https://example.com/acme.png",
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title": "Acme raises Series A",
		"link": "https://example.com/acme",
		"date": "Jan 2, 2024",
		"category": "Funding",
		"excerpt": "Acme raised...",
		"author": "Jane Doe",
		"image": "https://example.com/acme.png"
	}`, string(b))
}

func TestRecord_OmitsAbsentFields(t *testing.T) {
	b, err := json.Marshal(Record{Title: "Only a title"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "Only a title"}`, string(b))

	b, err = json.Marshal(Record{Title: "post", Score: IntPtr(0), Comments: IntPtr(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "post", "score": 0, "comments": 3}`, string(b))
}

func TestResultSet_Helpers(t *testing.T) {
	rs := ResultSet{
		"beta":  {{Title: "b1"}, {Title: "b2"}},
		"alpha": {},
	}

	assert.Equal(t, []string{"alpha", "beta"}, rs.Queries())
	assert.Equal(t, 2, rs.RecordCount())

	cp := rs.Clone()
	cp["beta"][0].Title = "changed"
	cp["gamma"] = nil
	assert.Equal(t, "b1", rs["beta"][0].Title)
	assert.NotContains(t, rs, "gamma")
}

func TestQueryStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, QueryCompleted.Terminal())
	assert.True(t, QueryFailed.Terminal())
	for _, s := range []QueryStatus{QueryPending, QueryFetching, QueryParsing, QueryFiltering} {
		assert.False(t, s.Terminal(), string(s))
	}
}
