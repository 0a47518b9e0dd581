package utils

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// NewTransport builds the connection pool shared by every outbound client.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// NewRestyClient returns a resty client on top of the shared transport with
// its own per-request timeout.
func NewRestyClient(transport http.RoundTripper, timeout time.Duration, userAgent string) *resty.Client {
	client := resty.New().SetTimeout(timeout)
	if transport != nil {
		client.SetTransport(transport)
	}
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return client
}
