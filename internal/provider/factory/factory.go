package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"llmchat-gateway/internal/config"
	openaiProvider "llmchat-gateway/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewUpstream constructs the upstream adapter described by cfg.
func NewUpstream(cfg config.LLMConfig, observer openaiProvider.Observer) (*openaiProvider.Provider, error) {
	p, err := openaiProvider.New(cfg.BaseURL, NewHTTPClient(cfg.RequestTimeout), observer)
	if err != nil {
		return nil, fmt.Errorf("initialise upstream provider: %w", err)
	}
	return p, nil
}

// NewHTTPClient returns a pooled client for completion traffic.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewProbeClient returns a client for the reachability check: connectTimeout
// bounds the dial, readTimeout bounds the wait for response headers. It
// keeps no idle connections so every probe opens a fresh one.
func NewProbeClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		DisableKeepAlives:     true,
	}

	return &http.Client{
		Timeout:   connectTimeout + readTimeout,
		Transport: transport,
	}
}
