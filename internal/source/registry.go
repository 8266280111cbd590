package source

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coverage-cli/internal/config"
)

// Options are the adapter-relevant parts of a lane's configuration.
type Options struct {
	Scrolls     int
	ResultLimit int
}

// Factory builds an adapter for a lane.
type Factory func(name, baseURL string, opts Options) (Adapter, error)

type registration struct {
	factory Factory
	baseURL string
}

var registry = map[string]registration{
	"techcrunch":  {newTechCrunch, "https://techcrunch.com"},
	"factordaily": {newFactorDaily, "https://factordaily.com"},
	"yourstory":   {newYourStory, "https://yourstory.com"},
	"inc42":       {newInc42, "https://inc42.com"},
	"reddit":      {newReddit, "https://www.reddit.com"},
}

// Adapters lists the registered adapter names.
func Adapters() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the adapter for lane name from its configuration. The
// implementation is cfg.Adapter (defaulting to name); cfg.BaseURL overrides
// the site origin.
func New(name string, cfg config.SourceConfig) (Adapter, error) {
	adapter := cfg.Adapter
	if adapter == "" {
		adapter = name
	}

	reg, ok := registry[adapter]
	if !ok {
		return nil, eris.Errorf("source: unknown adapter %q for %s", adapter, name)
	}

	base := cfg.BaseURL
	if base == "" {
		base = reg.baseURL
	}
	return reg.factory(name, base, Options{Scrolls: cfg.Scrolls, ResultLimit: cfg.ResultLimit})
}
