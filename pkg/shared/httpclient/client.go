// Package httpclient builds outbound http.Client instances with the
// timeout/retry/TLS knobs the fetcher and AI clients need, instead of each
// caller constructing its own http.Transport by hand.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig configures an outbound HTTP client.
type ClientConfig struct {
	Timeout                 time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
	MaxIdleConnsPerHost     int
}

// DefaultClientConfig returns the baseline client configuration used when a
// caller doesn't override anything.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:                30 * time.Second,
		MaxRetries:             3,
		DisableSSLVerification: false,
		MaxIdleConns:           10,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		MaxIdleConnsPerHost:    2,
	}
}

// NewClient builds an *http.Client from the given configuration.
// MaxRetries is not read here: the returned client does not retry.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in only, for local dev against self-signed origins
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a client with default pooling behavior and
// only the timeout overridden.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}
