// internal/transport/transport.go - Shared HTTP client plumbing for service checks
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"soapwatch/internal/config"
)

// maxPayloadBytes caps how much of a response body a check will read.
const maxPayloadBytes = 4 << 20

// Error wraps a network-level failure. Any *Error is retryable; an HTTP
// response of any status code is not an Error.
type Error struct {
	Op      string
	URL     string
	Err     error
	Timeout bool
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport %s %s: timeout: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is the raw outcome of one request attempt.
type Response struct {
	Payload    []byte
	StatusCode int
	Latency    time.Duration
}

// Client performs one protocol-specific check request.
type Client interface {
	Perform(ctx context.Context, svc *config.ServiceConfig) (*Response, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
