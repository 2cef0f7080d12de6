// internal/config/config.go - YAML configuration with include-directory merging
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"soapwatch/internal/schedule"
	"soapwatch/internal/validation"
)

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Prometheus    PrometheusConfig   `yaml:"prometheus"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Services      []ServiceConfig    `yaml:"services"`
	Include       IncludeConfig      `yaml:"include"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Type             string        `yaml:"type"`
	Path             string        `yaml:"path"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
	Workers                int           `yaml:"workers"`
	TickInterval           time.Duration `yaml:"tick_interval"`
	DefaultIntervalMinutes int           `yaml:"default_interval_minutes"`
	DefaultTimeoutSeconds  int           `yaml:"default_timeout_seconds"`
	DefaultRetries         int           `yaml:"default_retries"`
	DefaultBackoff         BackoffConfig `yaml:"default_backoff"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NotificationConfig struct {
	Enabled bool        `yaml:"enabled"`
	Email   EmailConfig `yaml:"email"`
}

type EmailConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Host          string         `yaml:"host"`
	Port          int            `yaml:"port"`
	Username      string         `yaml:"username"`
	Password      string         `yaml:"password"`
	From          string         `yaml:"from"`
	To            []string       `yaml:"to"`
	Subject       string         `yaml:"subject"`
	Template      string         `yaml:"template"`
	OnlyOnVerdict []string       `yaml:"only_on_verdict"`
	Throttle      ThrottleConfig `yaml:"throttle"`
}

type ThrottleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Window        time.Duration `yaml:"window"`
	MaxPerService int           `yaml:"max_per_service"`
	MaxTotal      int           `yaml:"max_total"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

// ServiceConfig describes one monitored SOAP or REST endpoint.
type ServiceConfig struct {
	Name            string              `yaml:"name"`
	Protocol        string              `yaml:"protocol"`
	Endpoint        EndpointConfig      `yaml:"endpoint"`
	IntervalMinutes int                 `yaml:"interval_minutes"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds"`
	Retries         *int                `yaml:"retries,omitempty"`
	Backoff         *BackoffConfig      `yaml:"backoff,omitempty"`
	Pattern         *validation.Pattern `yaml:"pattern,omitempty"`
	Window          *schedule.Window    `yaml:"window,omitempty"`
	Enabled         *bool               `yaml:"enabled,omitempty"`
	Tags            map[string]string   `yaml:"tags,omitempty"`
}

type EndpointConfig struct {
	URL        string            `yaml:"url"`
	WSDL       string            `yaml:"wsdl,omitempty"`
	SOAPAction string            `yaml:"soap_action,omitempty"`
	Method     string            `yaml:"method,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Query      map[string]string `yaml:"query,omitempty"`
	Body       string            `yaml:"body,omitempty"`
}

type BackoffConfig struct {
	Mode  string        `yaml:"mode"`
	Delay time.Duration `yaml:"delay"`
}

// PartialConfig is the shape of an include file; sections it omits are
// left untouched in the main config.
type PartialConfig struct {
	Server        *ServerConfig       `yaml:"server,omitempty"`
	Database      *DatabaseConfig     `yaml:"database,omitempty"`
	Prometheus    *PrometheusConfig   `yaml:"prometheus,omitempty"`
	Monitoring    *MonitoringConfig   `yaml:"monitoring,omitempty"`
	Logging       *LoggingConfig      `yaml:"logging,omitempty"`
	Notifications *NotificationConfig `yaml:"notifications,omitempty"`
	Services      []ServiceConfig     `yaml:"services,omitempty"`
}

func Load(filename string) (*Config, error) {
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}

	// Consistent ordering so later files win predictably
	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		if err := loadAndMergeInclude(config, match); err != nil {
			return fmt.Errorf("failed to load include file %s: %w", match, err)
		}
	}

	return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read include file: %w", err)
	}

	var partial PartialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse include file YAML: %w", err)
	}

	mergePartialConfig(config, &partial)
	return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
	if len(partial.Services) > 0 {
		config.Services = append(config.Services, partial.Services...)
	}
	if partial.Server != nil {
		config.Server = *partial.Server
	}
	if partial.Database != nil {
		config.Database = *partial.Database
	}
	if partial.Prometheus != nil {
		config.Prometheus = *partial.Prometheus
	}
	if partial.Monitoring != nil {
		config.Monitoring = *partial.Monitoring
	}
	if partial.Logging != nil {
		config.Logging = *partial.Logging
	}
	if partial.Notifications != nil {
		config.Notifications = *partial.Notifications
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "boltdb"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/soapwatch.db"
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = time.Hour
	}
	if cfg.Database.HistoryRetention == 0 {
		cfg.Database.HistoryRetention = 30 * 24 * time.Hour
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Monitoring.Workers == 0 {
		cfg.Monitoring.Workers = 3
	}
	if cfg.Monitoring.TickInterval == 0 {
		cfg.Monitoring.TickInterval = 30 * time.Second
	}
	if cfg.Monitoring.DefaultIntervalMinutes == 0 {
		cfg.Monitoring.DefaultIntervalMinutes = 5
	}
	if cfg.Monitoring.DefaultTimeoutSeconds == 0 {
		cfg.Monitoring.DefaultTimeoutSeconds = 30
	}
	if cfg.Monitoring.DefaultRetries == 0 {
		cfg.Monitoring.DefaultRetries = 3
	}
	if cfg.Monitoring.DefaultBackoff.Mode == "" {
		cfg.Monitoring.DefaultBackoff.Mode = "fixed"
	}
	if cfg.Monitoring.DefaultBackoff.Delay == 0 {
		cfg.Monitoring.DefaultBackoff.Delay = 5 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Notifications.Email.Subject == "" {
		cfg.Notifications.Email.Subject = "soapwatch: {{.Service}} is {{.Verdict}}"
	}
	if cfg.Notifications.Email.Template == "" {
		cfg.Notifications.Email.Template = "Service {{.Service}} reported {{.Verdict}} at {{.Timestamp}}: {{.Reason}}"
	}
	if len(cfg.Notifications.Email.OnlyOnVerdict) == 0 {
		cfg.Notifications.Email.OnlyOnVerdict = []string{"warning", "failure", "error"}
	}
	if cfg.Notifications.Email.Port == 0 {
		cfg.Notifications.Email.Port = 587
	}
	if cfg.Notifications.Email.Throttle.Window == 0 {
		cfg.Notifications.Email.Throttle.Window = 15 * time.Minute
	}
	if cfg.Notifications.Email.Throttle.MaxPerService == 0 {
		cfg.Notifications.Email.Throttle.MaxPerService = 5
	}
	if cfg.Notifications.Email.Throttle.MaxTotal == 0 {
		cfg.Notifications.Email.Throttle.MaxTotal = 20
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.IntervalMinutes == 0 {
			svc.IntervalMinutes = cfg.Monitoring.DefaultIntervalMinutes
		}
		if svc.TimeoutSeconds == 0 {
			svc.TimeoutSeconds = cfg.Monitoring.DefaultTimeoutSeconds
		}
		if svc.Retries == nil {
			retries := cfg.Monitoring.DefaultRetries
			svc.Retries = &retries
		}
		if svc.Backoff == nil {
			backoff := cfg.Monitoring.DefaultBackoff
			svc.Backoff = &backoff
		}
		if svc.Endpoint.Method == "" && svc.Protocol == "rest" {
			svc.Endpoint.Method = "GET"
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Monitoring.Workers < 1 {
		return fmt.Errorf("monitoring.workers must be at least 1")
	}
	if cfg.Database.Type != "boltdb" {
		return fmt.Errorf("only boltdb is supported currently")
	}
	if cfg.Monitoring.TickInterval <= 0 {
		return fmt.Errorf("monitoring.tick_interval must be positive")
	}

	if cfg.Notifications.Enabled && cfg.Notifications.Email.Enabled {
		if cfg.Notifications.Email.Host == "" {
			return fmt.Errorf("notifications.email.host is required when email is enabled")
		}
		if cfg.Notifications.Email.From == "" {
			return fmt.Errorf("notifications.email.from is required when email is enabled")
		}
		if len(cfg.Notifications.Email.To) == 0 {
			return fmt.Errorf("notifications.email.to must list at least one recipient")
		}
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if cfg.Include.Pattern != "" && !isValidGlobPattern(cfg.Include.Pattern) {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	names := make(map[string]bool)
	for _, svc := range cfg.Services {
		if svc.Name == "" {
			return fmt.Errorf("every service needs a name")
		}
		if names[svc.Name] {
			return fmt.Errorf("duplicate service name: %s", svc.Name)
		}
		names[svc.Name] = true
	}

	return nil
}

// Validate checks one service's definition, pattern and window
// included. Invalid services are skipped at registration time so one
// bad entry does not take the rest of the fleet down.
func (s *ServiceConfig) Validate() error {
	switch s.Protocol {
	case "soap", "rest":
	default:
		return fmt.Errorf("service %s: unknown protocol %q", s.Name, s.Protocol)
	}
	if s.Endpoint.URL == "" && s.Endpoint.WSDL == "" {
		return fmt.Errorf("service %s: endpoint.url or endpoint.wsdl is required", s.Name)
	}
	if s.IntervalMinutes < 1 {
		return fmt.Errorf("service %s: interval_minutes must be at least 1", s.Name)
	}
	if s.Retries != nil && *s.Retries < 0 {
		return fmt.Errorf("service %s: retries must not be negative", s.Name)
	}
	if s.Backoff != nil {
		switch s.Backoff.Mode {
		case "fixed", "incremental":
		default:
			return fmt.Errorf("service %s: unknown backoff mode %q", s.Name, s.Backoff.Mode)
		}
		if s.Backoff.Delay < 0 {
			return fmt.Errorf("service %s: backoff delay must not be negative", s.Name)
		}
	}
	if s.Pattern != nil {
		if err := s.Pattern.Validate(); err != nil {
			return fmt.Errorf("service %s: %w", s.Name, err)
		}
	}
	if err := s.Window.Validate(); err != nil {
		return fmt.Errorf("service %s: %w", s.Name, err)
	}
	return nil
}

// IsEnabled defaults to true when the enabled flag is absent.
func (s *ServiceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RetryCount returns the configured attempt budget, or -1 when the
// service leaves it to the monitoring defaults. An explicit 0 means a
// single attempt with no retry.
func (s *ServiceConfig) RetryCount() int {
	if s.Retries == nil {
		return -1
	}
	return *s.Retries
}

// Interval returns the check interval as a duration.
func (s *ServiceConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Timeout returns the per-attempt timeout as a duration.
func (s *ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func isValidGlobPattern(pattern string) bool {
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
		return false
	}
	_, err := filepath.Match(pattern, "test.yaml")
	return err == nil
}
