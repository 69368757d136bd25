// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoBaseURL indicates the client was built without a base URL and
	// was handed a relative request path.
	ErrNoBaseURL = errors.New("backend: no base URL configured")

	// ErrStreamCancelled indicates the caller cancelled the context while
	// a stream was in flight.
	ErrStreamCancelled = errors.New("backend: stream cancelled")
)

// BackendError is a non-success HTTP response from the bridge.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxErrorBodySize bounds how much of a failed response body is read
	// into an error message.
	MaxErrorBodySize = 64 * 1024

	// streamReadSize is the chunk size for draining stream bodies.
	streamReadSize = 4096

	// CancelledMarker is appended to the delta stream when the caller
	// aborts mid-response, so the transcript shows the cut point.
	CancelledMarker = "[Cancelled]"
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// Shared transports keep connection pools warm across requests. The
// streaming client carries no overall timeout: stream lifetime is governed
// by the caller's context, and a long-running agent turn is not an error.
var (
	sharedHTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one bridge deployment. Construct with NewClient and the
// fluent With* methods; the zero value is not usable.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	frameLog     *frameLogger
}

// NewClient creates a client for the given base URL. baseURL may be empty
// when every Request carries an absolute URL (single-endpoint setups).
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
}

// WithHTTPClient overrides both transports. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithRateLimit applies a client-side request limiter (requests/second).
// Zero or negative disables limiting.
func (c *Client) WithRateLimit(rps float64) *Client {
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	} else {
		c.limiter = nil
	}
	return c
}

// WithFrameLog appends every raw SSE frame to the given file. Diagnostic
// aid; empty path disables it.
func (c *Client) WithFrameLog(path string) *Client {
	if path != "" {
		c.frameLog = newFrameLogger(path)
	} else {
		c.frameLog = nil
	}
	return c
}

// resolveURL expands a request path against the base URL. Absolute URLs
// pass through untouched.
func (c *Client) resolveURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.baseURL == "" {
		return "", ErrNoBaseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path, nil
}

// setAuthHeader picks the auth scheme from the target URL. Azure-hosted
// endpoints (and anything routed through an /openai/ path) expect the
// bare "api-key" header; everything else gets a bearer token. No key, no
// header.
func (c *Client) setAuthHeader(req *http.Request, target string) {
	if c.apiKey == "" {
		return
	}
	if isAzureStyle(target) {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func isAzureStyle(target string) bool {
	u, err := url.Parse(target)
	if err == nil && u.Host != "" {
		host := strings.ToLower(u.Hostname())
		if host == "azure.com" || strings.HasSuffix(host, ".azure.com") {
			return true
		}
	}
	return strings.Contains(target, "/openai/")
}
