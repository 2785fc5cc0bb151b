package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// Transient covers transport failures: refused connections, timeouts, proxy errors.
	Transient ErrorKind = iota
	// Permanent is a completed request that cannot be used: a non-2xx status or an oversized body.
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// FetchError is returned by every fetch failure.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	ViaProxy   bool
	Err        error
}

func (e *FetchError) Error() string {
	route := "direct"
	if e.ViaProxy {
		route = "proxy"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d", e.URL, route, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, route, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Transient
}

// isProxyFailure reports whether an attempt through a proxy failed at the proxy hop.
// 407 and gateway statuses on a plain-HTTP target are answered by the proxy itself.
func isProxyFailure(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.ViaProxy {
		return false
	}
	if fe.Kind == Transient {
		return true
	}
	switch fe.StatusCode {
	case http.StatusProxyAuthRequired, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}
