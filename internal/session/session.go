// Package session persists per-source cookie sets captured by an external
// login flow so authenticated sources can be scraped without logging in.
package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Load when no session is stored for a source.
var ErrNotFound = errors.New("session: not found")

// Cookie is one stored cookie. Field names follow the WebDriver cookie
// format so browser exports load directly.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expiry   int64  `json:"expiry,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// Expired reports whether the cookie has an expiry before now.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expiry > 0 && time.Unix(c.Expiry, 0).Before(now)
}

// Session is an opaque, domain-scoped cookie set for one source.
type Session struct {
	Source  string    `json:"source"`
	Domain  string    `json:"domain,omitempty"`
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at"`
}

// Store loads and saves sessions by source name.
type Store interface {
	Load(ctx context.Context, source string) (*Session, error)
	Save(ctx context.Context, source string, s *Session) error
}

// Live returns the cookies that have not expired at now.
func (s *Session) Live(now time.Time) []Cookie {
	live := make([]Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	return live
}

// HTTPCookies converts the live cookies to net/http form.
func (s *Session) HTTPCookies(now time.Time) []*http.Cookie {
	live := s.Live(now)
	out := make([]*http.Cookie, 0, len(live))
	for _, c := range live {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if hc.Path == "" {
			hc.Path = "/"
		}
		if c.Expiry > 0 {
			hc.Expires = time.Unix(c.Expiry, 0)
		}
		out = append(out, hc)
	}
	return out
}

// Jar returns a cookie jar primed with the session's live cookies for base.
func (s *Session) Jar(base *url.URL, now time.Time) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "session: new jar")
	}
	jar.SetCookies(base, s.HTTPCookies(now))
	return jar, nil
}
