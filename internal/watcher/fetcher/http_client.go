package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
)

// maxBodySize caps a page read to 10MB. A larger page is an error, not a truncated document.
const maxBodySize = 10 << 20

// Option configures a fetcher.
type Option func(*settings)

type settings struct {
	userAgent  string
	timeout    time.Duration
	onFallback func(proxy string, err error)
	maxBody    int64
}

func defaultSettings() settings {
	return settings{
		userAgent: config.DefaultUserAgent,
		timeout:   config.DefaultFetchTimeout,
		maxBody:   maxBodySize,
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBodySize overrides the largest accepted page size.
func WithMaxBodySize(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithFallbackHook is called each time a proxy attempt fails and the direct path is tried.
func WithFallbackHook(fn func(proxy string, err error)) Option {
	return func(s *settings) { s.onFallback = fn }
}

// Client fetches pages over plain HTTP.
type Client struct {
	settings
	direct *http.Client

	proxyMu      sync.Mutex
	proxyClients map[string]*http.Client
}

// NewClient creates an HTTP fetcher.
func NewClient(opts ...Option) *Client {
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}

	// direct means direct: environment proxies are ignored
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	return &Client{
		settings:     s,
		direct:       &http.Client{Timeout: s.timeout, Transport: transport},
		proxyClients: make(map[string]*http.Client),
	}
}

// Fetch GETs pageURL and returns the body. With a proxy the request goes through it
// first; a proxy-level failure is followed by one direct attempt within the same call.
func (c *Client) Fetch(ctx context.Context, pageURL string, proxy *config.ProxyConfig) (string, error) {
	if proxy != nil {
		body, err := c.get(ctx, c.proxyClient(proxy), pageURL, true)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !isProxyFailure(err) {
			return "", err
		}
		slog.Warn("Proxy attempt failed, falling back to direct connection",
			"proxy", proxy.Masked(), "url", pageURL, "error", err)
		if c.onFallback != nil {
			c.onFallback(proxy.Masked(), err)
		}
	}

	return c.get(ctx, c.direct, pageURL, false)
}

func (c *Client) proxyClient(proxy *config.ProxyConfig) *http.Client {
	proxyURL := proxy.URL()
	key := proxyURL.String()

	c.proxyMu.Lock()
	defer c.proxyMu.Unlock()

	if client, ok := c.proxyClients[key]; ok {
		return client
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)

	client := &http.Client{Timeout: c.timeout, Transport: transport}
	c.proxyClients[key] = client
	return client
}

func (c *Client) get(ctx context.Context, client *http.Client, pageURL string, viaProxy bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &FetchError{Kind: Permanent, URL: pageURL, ViaProxy: viaProxy, Err: err}
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{Kind: Transient, URL: pageURL, ViaProxy: viaProxy, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", &FetchError{Kind: Transient, URL: pageURL, ViaProxy: viaProxy, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return "", &FetchError{Kind: Permanent, URL: pageURL, ViaProxy: viaProxy,
			Err: fmt.Errorf("body exceeds limit of %d bytes", c.maxBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyStr := string(body)
		if len(bodyStr) > 300 {
			bodyStr = bodyStr[:300] + "..."
		}
		slog.Warn("HTTP error response",
			"url", pageURL,
			"status", resp.StatusCode,
			"via_proxy", viaProxy,
			"body_preview", bodyStr)
		return "", &FetchError{Kind: Permanent, URL: pageURL, StatusCode: resp.StatusCode, ViaProxy: viaProxy}
	}

	slog.Debug("Fetched page", "url", pageURL, "status", resp.StatusCode, "size", len(body),
		"via_proxy", viaProxy, "duration", time.Since(start))

	return string(body), nil
}

// setHeaders sets HTTP headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
}
