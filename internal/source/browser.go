package source

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coverage-cli/internal/session"
)

const scrollPause = 2 * time.Second

// BrowserOptions configures a BrowserFetcher.
type BrowserOptions struct {
	UserAgent string
	Timeout   time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
}

// BrowserFetcher renders pages in headless Chrome with a session's cookies
// installed, for sources whose results are built client-side. One browser
// is started lazily and reused; each fetch gets its own tab.
type BrowserFetcher struct {
	opts    BrowserOptions
	cookies []*network.CookieParam

	mu            sync.Mutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewBrowserFetcher creates a fetcher that replays s (may be nil) against
// base.
func NewBrowserFetcher(opts BrowserOptions, s *session.Session, base string) *BrowserFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &BrowserFetcher{opts: opts, cookies: cookieParams(s, base, time.Now())}
}

// cookieParams converts live session cookies for CDP. Cookies without a
// domain are scoped by URL instead.
func cookieParams(s *session.Session, base string, now time.Time) []*network.CookieParam {
	if s == nil {
		return nil
	}
	live := s.Live(now)
	params := make([]*network.CookieParam, 0, len(live))
	for _, c := range live {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Domain == "" {
			p.URL = base
		}
		if p.Path == "" {
			p.Path = "/"
		}
		params = append(params, p)
	}
	return params
}

func (b *BrowserFetcher) start() error {
	if b.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if len(b.cookies) == 0 {
			return nil
		}
		return network.SetCookies(b.cookies).Do(ctx)
	}))
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return eris.Wrap(err, "source: start browser")
	}

	zap.L().Info("source: browser started", zap.Int("cookies", len(b.cookies)))
	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelBrowser = cancelBrowser
	return nil
}

// Fetch renders spec.URL and returns the resulting document.
func (b *BrowserFetcher) Fetch(ctx context.Context, spec FetchSpec) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.start(); err != nil {
		return nil, &FetchError{URL: spec.URL, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	if err := chromedp.Run(tabCtx, renderActions(spec, &html)...); err != nil {
		return nil, &FetchError{URL: spec.URL, Retryable: ctx.Err() == nil, Err: err}
	}

	body := []byte(html)
	if bt := DetectBlock(0, nil, body); bt != BlockNone {
		return nil, &FetchError{URL: spec.URL, Blocked: bt}
	}

	zap.L().Debug("source: rendered",
		zap.String("url", spec.URL),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

func renderActions(spec FetchSpec, html *string) []chromedp.Action {
	var actions []chromedp.Action
	if len(spec.Headers) > 0 {
		headers := make(network.Headers, len(spec.Headers))
		for k, v := range spec.Headers {
			headers[k] = v
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions,
		chromedp.Navigate(spec.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if spec.Settle > 0 {
		actions = append(actions, chromedp.Sleep(spec.Settle))
	}
	for range spec.Scrolls {
		var y float64
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight); window.scrollY`, &y),
			chromedp.Sleep(scrollPause),
		)
	}
	return append(actions, chromedp.OuterHTML("html", html, chromedp.ByQuery))
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx == nil {
		return nil
	}
	b.cancelBrowser()
	b.cancelAlloc()
	b.browserCtx = nil
	return nil
}
