package source

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// ErrDisallowed is wrapped by a FetchError for paths robots.txt refuses.
var ErrDisallowed = errors.New("source: disallowed by robots.txt")

// RobotsGuard answers robots.txt checks for one user agent, fetching each
// host's rules once. An unreachable or unparsable robots.txt allows
// everything.
type RobotsGuard struct {
	client *http.Client
	agent  string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsGuard creates a guard for agent. A nil client is replaced by the
// client of the HTTPFetcher the guard is attached to.
func NewRobotsGuard(client *http.Client, agent string) *RobotsGuard {
	return &RobotsGuard{client: client, agent: agent, groups: make(map[string]*robotstxt.Group)}
}

func (g *RobotsGuard) defaultClient(c *http.Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		g.client = c
	}
}

// Allowed reports whether u may be fetched.
func (g *RobotsGuard) Allowed(ctx context.Context, u *url.URL) bool {
	group := g.group(ctx, u)
	if group == nil {
		return true
	}
	return group.Test(u.RequestURI())
}

func (g *RobotsGuard) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	defer g.mu.Unlock()
	if grp, ok := g.groups[key]; ok {
		return grp
	}

	grp, err := g.load(ctx, key)
	if errors.Is(err, context.Canceled) {
		// Not an answer from the site; ask again next time.
		return nil
	}
	g.groups[key] = grp
	return grp
}

// load fetches origin's rules. A nil group allows everything; the error is
// only reported so the caller can tell a cancelled lookup from a failed one.
func (g *RobotsGuard) load(ctx context.Context, origin string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.agent)

	client := g.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		zap.L().Debug("source: robots.txt unavailable", zap.String("origin", origin), zap.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		zap.L().Debug("source: robots.txt unparsable", zap.String("origin", origin), zap.Error(err))
		return nil, err
	}
	return data.FindGroup(g.agent), nil
}
