package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/model"
)

func TestAdapters(t *testing.T) {
	assert.Subset(t, Adapters(), []string{"factordaily", "inc42", "reddit", "techcrunch", "yourstory"})
}

func TestNew(t *testing.T) {
	a, err := New("techcrunch", config.SourceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "techcrunch", a.Name())
	assert.Equal(t, "https://techcrunch.com", a.BaseURL())
	assert.IsType(t, &TechCrunch{}, a)
}

func TestNewAliasWithBaseURL(t *testing.T) {
	a, err := New("mirror", config.SourceConfig{Adapter: "factordaily", BaseURL: "https://mirror.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mirror", a.Name())
	assert.IsType(t, &FactorDaily{}, a)

	spec, err := a.BuildRequest("Acme", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.com/?s=Acme", spec.URL)
}

func TestNewUnknownAdapter(t *testing.T) {
	_, err := New("medium", config.SourceConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown adapter")
}

func TestNewInvalidBaseURL(t *testing.T) {
	_, err := New("techcrunch", config.SourceConfig{BaseURL: "::"})
	assert.Error(t, err)
}

type stubAdapter struct{ site }

func (stubAdapter) BuildRequest(string, int) (FetchSpec, error) { return FetchSpec{}, nil }
func (stubAdapter) ParsePage([]byte) ([]model.Record, error)    { return nil, nil }
func (stubAdapter) RequiresAuthenticatedSession() bool          { return false }

func TestNewCustomAdapter(t *testing.T) {
	registry["stub"] = registration{
		factory: func(name, base string, _ Options) (Adapter, error) {
			s, err := newSite(name, base)
			if err != nil {
				return nil, err
			}
			return stubAdapter{s}, nil
		},
		baseURL: "https://stub.example.com",
	}
	t.Cleanup(func() { delete(registry, "stub") })

	a, err := New("stub-lane", config.SourceConfig{Adapter: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub-lane", a.Name())
	assert.Equal(t, "https://stub.example.com", a.BaseURL())
	assert.Contains(t, Adapters(), "stub")
}

func TestNewFetcherSelection(t *testing.T) {
	a, err := New("techcrunch", config.SourceConfig{})
	require.NoError(t, err)

	f, err := NewFetcher(a, config.SourceConfig{UserAgent: "ua"}, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)

	f, err = NewFetcher(a, config.SourceConfig{Render: true}, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &BrowserFetcher{}, f)
	// Never started, so closing is a no-op.
	assert.NoError(t, f.Close())
}
