package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
)

// chromeMu serializes browser launches; one headless Chrome at a time is enough for a single poll loop.
var chromeMu sync.Mutex

// BrowserClient renders pages in headless Chrome so script-built markup is present in the returned HTML.
type BrowserClient struct {
	settings
}

// NewBrowserClient creates a headless Chrome fetcher.
func NewBrowserClient(opts ...Option) *BrowserClient {
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}
	return &BrowserClient{settings: s}
}

// Fetch renders pageURL and returns the outer HTML of the document, with the same
// proxy-then-direct policy as Client.
func (b *BrowserClient) Fetch(ctx context.Context, pageURL string, proxy *config.ProxyConfig) (string, error) {
	if proxy != nil {
		html, err := b.render(ctx, pageURL, proxy)
		if err == nil {
			return html, nil
		}
		if ctx.Err() != nil || !isProxyFailure(err) {
			return "", err
		}
		slog.Warn("Browser proxy attempt failed, falling back to direct connection",
			"proxy", proxy.Masked(), "url", pageURL, "error", err)
		if b.onFallback != nil {
			b.onFallback(proxy.Masked(), err)
		}
	}
	return b.render(ctx, pageURL, nil)
}

func (b *BrowserClient) render(ctx context.Context, pageURL string, proxy *config.ProxyConfig) (string, error) {
	chromeMu.Lock()
	defer chromeMu.Unlock()

	viaProxy := proxy != nil
	fail := func(kind ErrorKind, status int, err error) error {
		return &FetchError{Kind: kind, URL: pageURL, StatusCode: status, ViaProxy: viaProxy, Err: err}
	}

	chromeDir, err := os.MkdirTemp("", "livewatch_chrome_")
	if err != nil {
		return "", fail(Transient, 0, fmt.Errorf("create chrome temp dir: %w", err))
	}
	defer os.RemoveAll(chromeDir)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserDataDir(chromeDir),
		chromedp.UserAgent(b.userAgent),
	)
	if viaProxy {
		// Chrome takes the proxy without credentials; they are answered over CDP below
		opts = append(opts, chromedp.ProxyServer(fmt.Sprintf("%s://%s", proxy.Scheme, proxy.Addr())))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		slog.Debug("chromedp", "message", fmt.Sprintf(format, v...))
	}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	if viaProxy && proxy.Username != "" {
		listenProxyAuth(tabCtx, proxy.Username, proxy.Password)
		if err := chromedp.Run(tabCtx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
			return "", fail(Transient, 0, fmt.Errorf("chromedp enable fetch: %w", err))
		}
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(pageURL))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fail(Transient, 0, ctx.Err())
		}
		return "", fail(Transient, 0, fmt.Errorf("chromedp navigation: %w", err))
	}
	if resp != nil && (resp.Status < 200 || resp.Status > 299) {
		return "", fail(Permanent, int(resp.Status), nil)
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fail(Transient, 0, fmt.Errorf("chromedp read document: %w", err))
	}

	slog.Debug("Rendered page", "url", pageURL, "size", len(html), "via_proxy", viaProxy)
	return html, nil
}

// listenProxyAuth answers proxy auth challenges with the given credentials and
// releases every request paused by the Fetch domain.
func listenProxyAuth(ctx context.Context, username, password string) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}))
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueRequest(ev.RequestID))
			}()
		}
	})
}
