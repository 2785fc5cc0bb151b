// Package netcheck reports the public egress IP, directly or through a proxy.
package netcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
)

const (
	DefaultEndpoint = "https://api.ipify.org?format=json"
	DefaultTimeout  = 5 * time.Second
)

// Results of CheckIP that are not an address.
const (
	UnknownIP = "Unknown"
	ErrorIP   = "Error"
)

type ipResponse struct {
	IP string `json:"ip"`
}

// Checker queries an IP echo endpoint.
type Checker struct {
	endpoint string
	timeout  time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithEndpoint points the checker at another echo service.
func WithEndpoint(endpoint string) Option {
	return func(c *Checker) { c.endpoint = endpoint }
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{endpoint: DefaultEndpoint, timeout: DefaultTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

var defaultChecker = New()

// CheckIP reports the public IP of a direct connection using the default checker.
func CheckIP(ctx context.Context) string {
	return defaultChecker.CheckIP(ctx)
}

// TestProxy reports whether proxyURL can reach the echo endpoint using the default checker.
func TestProxy(ctx context.Context, proxyURL string) (bool, string) {
	return defaultChecker.TestProxy(ctx, proxyURL)
}

// CheckIP returns the public IP as seen by the echo endpoint.
// It returns "Unknown" when the body carries no address, "Error" on a non-200
// status, and "Error: <message>" when the request itself fails.
func (c *Checker) CheckIP(ctx context.Context) string {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	ip, status, err := c.query(ctx, &http.Client{Timeout: c.timeout, Transport: transport})
	if err != nil {
		slog.Error("Error checking IP", "error", err)
		return fmt.Sprintf("%s: %v", ErrorIP, err)
	}
	if status != http.StatusOK {
		return ErrorIP
	}
	if ip == "" {
		return UnknownIP
	}
	return ip
}

// TestProxy routes one echo request through proxyURL. On success detail is the
// egress IP; otherwise it describes the failure with the password masked.
func (c *Checker) TestProxy(ctx context.Context, proxyURL string) (bool, string) {
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.Host == "" {
		return false, fmt.Sprintf("invalid proxy URL %q", config.MaskProxyURL(proxyURL))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(parsed)
	client := &http.Client{Timeout: c.timeout, Transport: transport}
	defer transport.CloseIdleConnections()

	ip, status, err := c.query(ctx, client)
	if err != nil {
		return false, err.Error()
	}
	if status != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d", status)
	}
	if ip == "" {
		return false, "empty response"
	}
	return true, ip
}

func (c *Checker) query(ctx context.Context, client *http.Client) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	var body ipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return body.IP, resp.StatusCode, nil
}
