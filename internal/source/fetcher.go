package source

import (
	"time"

	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/session"
)

// NewFetcher picks the fetcher a lane runs on: a headless browser for
// rendered sources, a cookie-replaying client when a session is supplied,
// and a plain client otherwise.
func NewFetcher(a Adapter, cfg config.SourceConfig, timeout time.Duration, sess *session.Session) (Fetcher, error) {
	if cfg.Render {
		return NewBrowserFetcher(BrowserOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   timeout,
		}, sess, a.BaseURL()), nil
	}

	opts := HTTPOptions{UserAgent: cfg.UserAgent, Timeout: timeout}
	if cfg.RespectRobots {
		opts.Robots = NewRobotsGuard(nil, cfg.UserAgent)
	}
	if sess != nil {
		return NewJarFetcher(opts, sess, a.BaseURL())
	}
	return NewHTTPFetcher(opts), nil
}
