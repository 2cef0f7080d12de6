// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"soapwatch/internal/database"
)

// Prometheus metrics
var (
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soapwatch_check_duration_seconds",
			Help:    "Time spent executing endpoint checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "protocol", "verdict"},
	)

	CheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soapwatch_checks_total",
			Help: "Total number of checks executed",
		},
		[]string{"service", "protocol", "verdict"},
	)

	CheckAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soapwatch_check_attempts_total",
			Help: "Total request attempts including retries",
		},
		[]string{"service", "protocol"},
	)

	ServiceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soapwatch_service_status",
			Help: "Current service verdict (0=success, 1=warning, 2=failure, 3=error)",
		},
		[]string{"service", "protocol"},
	)

	ChecksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soapwatch_checks_in_flight",
			Help: "Number of checks currently executing",
		},
	)

	ActiveServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soapwatch_active_services_total",
			Help: "Number of enabled services being monitored",
		},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soapwatch_database_operations_total",
			Help: "Total database operations performed",
		},
		[]string{"operation", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soapwatch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordCheckResult(service, protocol, verdict string, attempts int, duration time.Duration) {
	CheckDuration.WithLabelValues(service, protocol, verdict).Observe(duration.Seconds())
	CheckTotal.WithLabelValues(service, protocol, verdict).Inc()
	CheckAttempts.WithLabelValues(service, protocol).Add(float64(attempts))
	ServiceStatus.WithLabelValues(service, protocol).Set(verdictValue(verdict))
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	services, err := c.store.GetServices(ctx)
	if err != nil {
		DatabaseOperations.WithLabelValues("get_services", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("get_services", "success").Inc()

	enabled := 0
	for _, svc := range services {
		if svc.Enabled {
			enabled++
		}
	}
	ActiveServices.Set(float64(enabled))

	return nil
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	WebSocketConnections.Add(float64(delta))
}

func verdictValue(verdict string) float64 {
	switch verdict {
	case "success":
		return 0
	case "warning":
		return 1
	case "failure":
		return 2
	default:
		return 3
	}
}
