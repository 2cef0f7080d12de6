package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soapwatch/internal/config"
)

func restService(url string) *config.ServiceConfig {
	return &config.ServiceConfig{
		Name:     "test-rest",
		Protocol: "rest",
		Endpoint: config.EndpointConfig{
			URL:     url,
			Method:  "GET",
			Headers: map[string]string{"X-Token": "abc"},
			Query:   map[string]string{"verbose": "1"},
		},
	}
}

func TestRESTClientPerform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Token"); got != "abc" {
			t.Errorf("X-Token = %q", got)
		}
		if got := r.URL.Query().Get("verbose"); got != "1" {
			t.Errorf("verbose = %q", got)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	resp, err := NewRESTClient().Perform(context.Background(), restService(srv.URL))
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if string(resp.Payload) != `{"status":"ok"}` {
		t.Errorf("payload = %q", resp.Payload)
	}
	if resp.Latency <= 0 {
		t.Error("latency should be measured")
	}
}

func TestRESTClientReturnsErrorStatuses(t *testing.T) {
	// A 500 is still a response the evaluator gets to classify, not a
	// transport failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	resp, err := NewRESTClient().Perform(context.Background(), restService(srv.URL))
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRESTClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := NewRESTClient().Perform(context.Background(), restService(srv.URL))
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *Error", err)
	}
}

func TestRESTClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewRESTClient().Perform(ctx, restService(srv.URL))
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !terr.Timeout {
		t.Errorf("Timeout = false for %v", terr)
	}
}

func TestSOAPClientPerform(t *testing.T) {
	const envelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><ns:consulta xmlns:ns="urn:billing"/></soap:Body></soap:Envelope>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "text/xml; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if sa := r.Header.Get("SOAPAction"); sa != `"urn:billing#consulta"` {
			t.Errorf("SOAPAction = %q", sa)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("wsdl query should be stripped, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`<resp>ok</resp>`))
	}))
	defer srv.Close()

	svc := &config.ServiceConfig{
		Name:     "test-soap",
		Protocol: "soap",
		Endpoint: config.EndpointConfig{
			WSDL:       srv.URL + "?wsdl",
			SOAPAction: "urn:billing#consulta",
			Body:       envelope,
		},
	}

	resp, err := NewSOAPClient().Perform(context.Background(), svc)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if string(resp.Payload) != `<resp>ok</resp>` {
		t.Errorf("payload = %q", resp.Payload)
	}
}
