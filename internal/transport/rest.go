// internal/transport/rest.go - REST endpoint client
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"soapwatch/internal/config"
)

const userAgent = "soapwatch/1.0"

// RESTClient performs plain HTTP checks against JSON endpoints.
type RESTClient struct {
	client *http.Client
}

func NewRESTClient() *RESTClient {
	return &RESTClient{client: newHTTPClient()}
}

// Perform issues one request attempt. Any HTTP response, including 4xx
// and 5xx, is returned as a Response for the evaluator; only failures
// below HTTP become an *Error.
func (c *RESTClient) Perform(ctx context.Context, svc *config.ServiceConfig) (*Response, error) {
	target := svc.Endpoint.URL
	if len(svc.Endpoint.Query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, &Error{Op: "request", URL: target, Err: err}
		}
		q := u.Query()
		for k, v := range svc.Endpoint.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	method := svc.Endpoint.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if svc.Endpoint.Body != "" {
		body = strings.NewReader(svc.Endpoint.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Op: "request", URL: target, Err: err}
	}
	for k, v := range svc.Endpoint.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: method, URL: target, Err: err, Timeout: isTimeout(ctx, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, &Error{Op: "read", URL: target, Err: err, Timeout: isTimeout(ctx, err)}
	}

	return &Response{
		Payload:    payload,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
