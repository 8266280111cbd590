package source

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/sells-group/coverage-cli/internal/resilience"
	"github.com/sells-group/coverage-cli/internal/session"
)

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Jar replays session cookies. Nil for unauthenticated sources.
	Jar http.CookieJar
	// Robots, when set, refuses paths the site disallows.
	Robots *RobotsGuard
	// Client replaces the default client (tests).
	Client *http.Client
}

// HTTPFetcher fetches pages with net/http, decoding legacy charsets and
// classifying failures as FetchErrors.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	robots    *RobotsGuard
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.Jar != nil {
		cp := *client
		cp.Jar = opts.Jar
		client = &cp
	}
	if opts.Robots != nil {
		opts.Robots.defaultClient(client)
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		robots:    opts.Robots,
	}
}

// NewJarFetcher creates an HTTPFetcher that replays a session's cookies
// against base.
func NewJarFetcher(opts HTTPOptions, s *session.Session, base string) (*HTTPFetcher, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse base url %q", base)
	}
	jar, err := s.Jar(u, time.Now())
	if err != nil {
		return nil, err
	}
	opts.Jar = jar
	return NewHTTPFetcher(opts), nil
}

// Fetch performs a GET bounded by the fetcher's timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, spec FetchSpec) ([]byte, error) {
	u, err := url.Parse(spec.URL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: spec.URL, Err: eris.Errorf("invalid url %q", spec.URL)}
	}

	// The timeout covers the robots.txt lookup too.
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return nil, &FetchError{URL: spec.URL, Err: ErrDisallowed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: spec.URL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: spec.URL, Retryable: resilience.IsTransient(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, &FetchError{URL: spec.URL, Retryable: true, Err: eris.Wrap(err, "read body")}
	}
	if len(body) > maxBody {
		zap.L().Warn("source: response truncated",
			zap.String("url", spec.URL),
			zap.Int("limit_bytes", maxBody),
		)
		body = body[:maxBody]
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
		return nil, &FetchError{URL: spec.URL, Status: resp.StatusCode, Blocked: bt}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:       spec.URL,
			Status:    resp.StatusCode,
			Retryable: resilience.IsTransientHTTPStatus(resp.StatusCode),
		}
	}

	zap.L().Debug("source: fetched",
		zap.String("url", spec.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return decodeBody(body, resp.Header.Get("Content-Type")), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// decodeBody converts a non-UTF-8 body to UTF-8 using the declared or
// sniffed charset. Valid UTF-8 passes through untouched.
func decodeBody(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		zap.L().Debug("source: charset decode failed",
			zap.String("charset", name),
			zap.Error(err),
		)
		return body
	}
	return decoded
}
