package netcheck

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIP(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		prefix  bool
	}{
		{
			name:    "address",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"ip":"203.0.113.7"}`)) },
			want:    "203.0.113.7",
		},
		{
			name:    "missing ip field",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) },
			want:    "Unknown",
		},
		{
			name:    "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    "Error",
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`not json`)) },
			want:    "Error: ",
			prefix:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got := New(WithEndpoint(srv.URL)).CheckIP(context.Background())
			if tt.prefix {
				assert.True(t, strings.HasPrefix(got, tt.want), got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckIP_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	got := New(WithEndpoint("http://"+addr), WithTimeout(time.Second)).CheckIP(context.Background())
	assert.True(t, strings.HasPrefix(got, "Error: "), got)
}

func TestTestProxy(t *testing.T) {
	// a plain HTTP proxy sees the absolute target URL and answers itself
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Proxy-Authorization") == "" {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}
		_, _ = w.Write([]byte(`{"ip":"198.51.100.20"}`))
	}))
	defer proxy.Close()

	c := New(WithEndpoint("http://echo.invalid/?format=json"))
	host := strings.TrimPrefix(proxy.URL, "http://")

	ok, detail := c.TestProxy(context.Background(), "http://user:pass@"+host)
	assert.True(t, ok)
	assert.Equal(t, "198.51.100.20", detail)

	ok, detail = c.TestProxy(context.Background(), "http://"+host)
	assert.False(t, ok)
	assert.Equal(t, "HTTP 407", detail)

	ok, detail = c.TestProxy(context.Background(), "::not a url")
	assert.False(t, ok)
	assert.Contains(t, detail, "invalid proxy URL")
}

func useDefaultChecker(t *testing.T, c *Checker) {
	t.Helper()
	prev := defaultChecker
	defaultChecker = c
	t.Cleanup(func() { defaultChecker = prev })
}

func TestPackageLevelChecks(t *testing.T) {
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.50"}`))
	}))
	defer echo.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"198.51.100.77"}`))
	}))
	defer proxy.Close()

	useDefaultChecker(t, New(WithEndpoint(echo.URL), WithTimeout(2*time.Second)))

	assert.Equal(t, "203.0.113.50", CheckIP(context.Background()))

	ok, detail := TestProxy(context.Background(), proxy.URL)
	assert.True(t, ok)
	assert.Equal(t, "198.51.100.77", detail)

	ok, detail = TestProxy(context.Background(), "http://user:hunter2@")
	assert.False(t, ok)
	assert.NotContains(t, detail, "hunter2")
}

func TestDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, DefaultTimeout, c.timeout)
}
