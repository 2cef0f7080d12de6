// internal/transport/soap.go - SOAP endpoint client
package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"soapwatch/internal/config"
)

const defaultEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body/>
</soap:Envelope>`

// SOAPClient POSTs an envelope to a SOAP endpoint and returns the raw
// XML response for flattening.
type SOAPClient struct {
	client *http.Client
}

func NewSOAPClient() *SOAPClient {
	return &SOAPClient{client: newHTTPClient()}
}

func (c *SOAPClient) Perform(ctx context.Context, svc *config.ServiceConfig) (*Response, error) {
	target := svc.Endpoint.URL
	if target == "" {
		target = serviceURL(svc.Endpoint.WSDL)
	}

	envelope := svc.Endpoint.Body
	if envelope == "" {
		envelope = defaultEnvelope
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(envelope))
	if err != nil {
		return nil, &Error{Op: "request", URL: target, Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset=utf-8`)
	req.Header.Set("User-Agent", userAgent)
	if svc.Endpoint.SOAPAction != "" {
		req.Header.Set("SOAPAction", `"`+svc.Endpoint.SOAPAction+`"`)
	}
	for k, v := range svc.Endpoint.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "POST", URL: target, Err: err, Timeout: isTimeout(ctx, err)}
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

// serviceURL strips the ?wsdl suffix so the envelope is posted to the
// service endpoint, not the description document.
func serviceURL(wsdl string) string {
	if i := strings.IndexByte(wsdl, '?'); i >= 0 {
		return wsdl[:i]
	}
	return wsdl
}
