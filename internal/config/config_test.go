package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func intPtr(v int) *int { return &v }

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimalConfig = `
services:
  - name: billing-soap
    protocol: soap
    endpoint:
      wsdl: "http://soap.example.com/billing?wsdl"
    pattern:
      success_field: "cabecera.codMensaje"
      success_values: ["00000"]
      failed_values: ["2001"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Monitoring.Workers != 3 {
		t.Errorf("workers = %d, want default 3", cfg.Monitoring.Workers)
	}
	if cfg.Database.Type != "boltdb" {
		t.Errorf("database type = %q, want boltdb", cfg.Database.Type)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}

	svc := cfg.Services[0]
	if svc.IntervalMinutes != 5 || svc.TimeoutSeconds != 30 || svc.RetryCount() != 3 {
		t.Errorf("service defaults = interval %d, timeout %d, retries %d",
			svc.IntervalMinutes, svc.TimeoutSeconds, svc.RetryCount())
	}
	if svc.Backoff == nil || svc.Backoff.Mode != "fixed" || svc.Backoff.Delay != 5*time.Second {
		t.Errorf("service backoff = %+v, want fixed 5s", svc.Backoff)
	}
	if !svc.IsEnabled() {
		t.Error("service without enabled flag should default to enabled")
	}
}

func TestLoadServiceDefinition(t *testing.T) {
	content := `
services:
  - name: accounts-rest
    protocol: rest
    endpoint:
      url: "https://api.example.com/v1/accounts/health"
      headers:
        Authorization: "Bearer token"
      query:
        verbose: "1"
    interval_minutes: 10
    timeout_seconds: 20
    retries: 2
    backoff:
      mode: incremental
      delay: 2s
    window:
      days_of_week: [monday, tuesday, wednesday, thursday, friday]
      start_time: "08:00"
      duration_hours: 11
    pattern:
      success_field: status
      success_values: [ok]
      validation_strategy: flexible
`
	cfg, err := Load(writeConfig(t, t.TempDir(), "config.yaml", content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	svc := cfg.Services[0]
	if err := svc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if svc.Endpoint.Method != "GET" {
		t.Errorf("rest method = %q, want default GET", svc.Endpoint.Method)
	}
	if svc.Backoff.Mode != "incremental" || svc.Backoff.Delay != 2*time.Second {
		t.Errorf("backoff = %+v", svc.Backoff)
	}
	if svc.Interval() != 10*time.Minute || svc.Timeout() != 20*time.Second {
		t.Errorf("interval = %v, timeout = %v", svc.Interval(), svc.Timeout())
	}
	if svc.Window == nil || svc.Window.DurationHours != 11 {
		t.Errorf("window = %+v", svc.Window)
	}
	if diff := cmp.Diff(map[string]string{"verbose": "1"}, svc.Endpoint.Query); diff != "" {
		t.Errorf("query (-want +got):\n%s", diff)
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "conf.d"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(dir, "conf.d"), "10-extra.yaml", `
services:
  - name: extra-rest
    protocol: rest
    endpoint:
      url: "https://extra.example.com/health"
`)
	main := writeConfig(t, dir, "config.yaml", minimalConfig+`
include:
  enabled: true
  directory: conf.d
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("services = %d, want main + include", len(cfg.Services))
	}
	if cfg.Services[1].Name != "extra-rest" {
		t.Errorf("included service = %q", cfg.Services[1].Name)
	}
}

func TestLoadRejectsDuplicateServiceNames(t *testing.T) {
	content := minimalConfig + `
  - name: billing-soap
    protocol: rest
    endpoint:
      url: "https://dup.example.com"
`
	if _, err := Load(writeConfig(t, t.TempDir(), "config.yaml", content)); err == nil {
		t.Error("duplicate service names should be rejected")
	}
}

func TestLoadKeepsZeroRetries(t *testing.T) {
	content := `
services:
  - name: single-shot
    protocol: rest
    endpoint:
      url: "https://api.example.com/health"
    retries: 0
`
	cfg, err := Load(writeConfig(t, t.TempDir(), "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	svc := cfg.Services[0]
	if svc.Retries == nil {
		t.Fatal("retries: 0 was treated as unset")
	}
	if *svc.Retries != 0 {
		t.Errorf("retries = %d, want explicit 0 to survive defaulting", *svc.Retries)
	}
	if err := svc.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for retries: 0", err)
	}
}

func TestServiceValidate(t *testing.T) {
	tests := []struct {
		name string
		svc  ServiceConfig
	}{
		{"unknown protocol", ServiceConfig{Name: "s", Protocol: "grpc", Endpoint: EndpointConfig{URL: "http://x"}, IntervalMinutes: 5}},
		{"missing endpoint", ServiceConfig{Name: "s", Protocol: "rest", IntervalMinutes: 5}},
		{"zero interval", ServiceConfig{Name: "s", Protocol: "rest", Endpoint: EndpointConfig{URL: "http://x"}}},
		{"negative retries", ServiceConfig{Name: "s", Protocol: "rest", Endpoint: EndpointConfig{URL: "http://x"}, IntervalMinutes: 5, Retries: intPtr(-1)}},
		{"bad backoff mode", ServiceConfig{Name: "s", Protocol: "rest", Endpoint: EndpointConfig{URL: "http://x"}, IntervalMinutes: 5, Backoff: &BackoffConfig{Mode: "exponential"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.svc.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, t.TempDir(), "config.yaml", "services: [\n")); err == nil {
		t.Error("malformed YAML should be rejected")
	}
}
