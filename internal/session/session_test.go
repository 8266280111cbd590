package session

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `[
  {"name": "sid", "value": "abc", "domain": ".yourstory.com", "path": "/", "expiry": 4102444800.5, "secure": true, "httpOnly": true, "sameSite": "Lax"},
  {"name": "pref", "value": "dark", "domain": "yourstory.com", "path": "/", "sameSite": "None"},
  {"name": "", "value": "ignored"}
]`

func TestImport(t *testing.T) {
	s, err := Import("yourstory", strings.NewReader(export), ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, "yourstory", s.Source)
	assert.Equal(t, ".yourstory.com", s.Domain)
	require.Len(t, s.Cookies, 2)
	assert.Equal(t, Cookie{
		Name: "sid", Value: "abc", Domain: ".yourstory.com", Path: "/",
		Expiry: 4102444800, Secure: true, HTTPOnly: true,
	}, s.Cookies[0])
	assert.Zero(t, s.Cookies[1].Expiry)
}

func TestImportDomainOverride(t *testing.T) {
	s, err := Import("inc42", strings.NewReader(export), ImportOptions{Domain: "inc42.com"})
	require.NoError(t, err)

	assert.Equal(t, "inc42.com", s.Domain)
	for _, c := range s.Cookies {
		assert.Equal(t, "inc42.com", c.Domain)
	}
}

func TestImportErrors(t *testing.T) {
	_, err := Import("x", strings.NewReader(`{"not": "an array"}`), ImportOptions{})
	assert.Error(t, err)

	_, err = Import("x", strings.NewReader(`[]`), ImportOptions{})
	assert.Error(t, err)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	s := &Session{
		Domain:  "inc42.com",
		Cookies: []Cookie{{Name: "sid", Value: "abc", Domain: "inc42.com", Path: "/"}},
	}
	require.NoError(t, store.Save(ctx, "inc42", s))

	info, err := os.Stat(store.Path("inc42"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load(ctx, "inc42")
	require.NoError(t, err)
	assert.Equal(t, "inc42", got.Source)
	assert.Equal(t, s.Cookies, got.Cookies)
	assert.False(t, got.SavedAt.IsZero())
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Load(context.Background(), "yourstory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreLoadEmptyCookies(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.Path("yourstory"), []byte(`{"source":"yourstory","cookies":[]}`), 0o600))

	_, err := store.Load(context.Background(), "yourstory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.Path("yourstory"), []byte(`{broken`), 0o600))

	_, err := store.Load(context.Background(), "yourstory")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveNil(t *testing.T) {
	store := NewFileStore(t.TempDir())
	assert.Error(t, store.Save(context.Background(), "x", nil))
}

func TestHTTPCookiesSkipsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{Cookies: []Cookie{
		{Name: "old", Value: "1", Expiry: now.Add(-time.Hour).Unix()},
		{Name: "new", Value: "2", Expiry: now.Add(time.Hour).Unix(), HTTPOnly: true},
		{Name: "forever", Value: "3"},
	}}

	got := s.HTTPCookies(now)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Name)
	assert.True(t, got[0].HttpOnly)
	assert.Equal(t, "/", got[0].Path)
	assert.Equal(t, "forever", got[1].Name)
	assert.True(t, got[1].Expires.IsZero())
}

func TestJarScopesCookies(t *testing.T) {
	s := &Session{Cookies: []Cookie{{Name: "sid", Value: "abc", Path: "/"}}}
	base, _ := url.Parse("https://inc42.com/")

	jar, err := s.Jar(base, time.Now())
	require.NoError(t, err)

	got := jar.Cookies(&url.URL{Scheme: "https", Host: "inc42.com", Path: "/page/2/"})
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].Value)

	assert.Empty(t, jar.Cookies(&url.URL{Scheme: "https", Host: "example.com", Path: "/"}))
}
