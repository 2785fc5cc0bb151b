package handlers

import (
	"context"
	"net/http"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
)

// IPChecker reports egress addresses.
type IPChecker interface {
	CheckIP(ctx context.Context) string
	TestProxy(ctx context.Context, proxyURL string) (bool, string)
}

// DiagnosticsIP reports the public IP of a direct connection.
func DiagnosticsIP(checker IPChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ip": checker.CheckIP(r.Context())})
	}
}

// DiagnosticsProxy tests the configured proxy. A nil proxy reports that none is configured.
func DiagnosticsProxy(checker IPChecker, proxy *config.ProxyConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if proxy == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
			return
		}

		ok, detail := checker.TestProxy(r.Context(), proxy.URL().String())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"configured": true,
			"proxy":      proxy.Masked(),
			"ok":         ok,
			"detail":     detail,
		})
	}
}
