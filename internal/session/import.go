package session

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// browserCookie is one entry of a WebDriver get_cookies() export. Fields the
// session does not keep (sameSite) are accepted and dropped.
type browserCookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expiry   *float64 `json:"expiry"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"httpOnly"`
	SameSite string   `json:"sameSite"`
}

// ImportOptions adjusts how an export is converted.
type ImportOptions struct {
	// Domain, when set, re-scopes every cookie to this domain.
	Domain string
}

// Import converts a browser cookie export into a Session for source.
func Import(source string, r io.Reader, opts ImportOptions) (*Session, error) {
	var raw []browserCookie
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "session: decode cookie export")
	}

	s := &Session{
		Source:  source,
		Domain:  opts.Domain,
		SavedAt: time.Now().UTC(),
	}
	for _, bc := range raw {
		if strings.TrimSpace(bc.Name) == "" {
			continue
		}
		c := Cookie{
			Name:     bc.Name,
			Value:    bc.Value,
			Domain:   bc.Domain,
			Path:     bc.Path,
			Secure:   bc.Secure,
			HTTPOnly: bc.HTTPOnly,
		}
		if opts.Domain != "" {
			c.Domain = opts.Domain
		}
		if bc.Expiry != nil {
			c.Expiry = int64(*bc.Expiry)
		}
		s.Cookies = append(s.Cookies, c)
	}

	if len(s.Cookies) == 0 {
		return nil, eris.New("session: cookie export contains no cookies")
	}
	if s.Domain == "" {
		s.Domain = s.Cookies[0].Domain
	}
	return s, nil
}
