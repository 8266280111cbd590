package source

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func mustAdapter(t *testing.T, name, base string) Adapter {
	t.Helper()
	reg := registry[name]
	require.NotNil(t, reg.factory, "adapter %s not registered", name)
	a, err := reg.factory(name, base, Options{Scrolls: 3, ResultLimit: 5})
	require.NoError(t, err)
	return a
}
