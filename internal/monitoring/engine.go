// internal/monitoring/engine.go
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"soapwatch/internal/config"
	"soapwatch/internal/database"
	"soapwatch/internal/metrics"
	"soapwatch/internal/notifications"
	"soapwatch/internal/transport"
)

// Engine wires the scheduler to storage, metrics and notifications,
// and owns the registered service set.
type Engine struct {
	config     *config.Config
	store      database.Store
	metrics    *metrics.Collector
	mailer     *notifications.Mailer
	scheduler  *Scheduler
	services   []*config.ServiceConfig
	resultHook func(*database.Result)
	mu         sync.RWMutex
	running    bool
}

func NewEngine(cfg *config.Config, store database.Store, metricsCollector *metrics.Collector) (*Engine, error) {
	engine := &Engine{
		config:  cfg,
		store:   store,
		metrics: metricsCollector,
	}

	if cfg.Notifications.Enabled && cfg.Notifications.Email.Enabled {
		mailer, err := notifications.NewMailer(&cfg.Notifications.Email)
		if err != nil {
			return nil, err
		}
		engine.mailer = mailer
		logrus.Info("Email notifications enabled")
	}

	engine.registerServices()

	clients := map[string]transport.Client{
		"soap": transport.NewSOAPClient(),
		"rest": transport.NewRESTClient(),
	}
	engine.scheduler = NewScheduler(&cfg.Monitoring, engine.Services, clients, engine.handleResult)

	return engine, nil
}

// registerServices validates every configured service and keeps the
// valid ones. One bad definition is logged and skipped, not fatal.
func (e *Engine) registerServices() {
	valid := make([]*config.ServiceConfig, 0, len(e.config.Services))

	for i := range e.config.Services {
		svc := &e.config.Services[i]
		if err := svc.Validate(); err != nil {
			logrus.WithError(err).WithField("service", svc.Name).Error("Skipping invalid service")
			continue
		}
		valid = append(valid, svc)
	}

	e.mu.Lock()
	e.services = valid
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"registered": len(valid),
		"skipped":    len(e.config.Services) - len(valid),
	}).Info("Registered services")
}

// Services returns the currently registered service set.
func (e *Engine) Services() []*config.ServiceConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.services
}

// Scheduler exposes the scheduler for status queries.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// SetResultHook registers a callback invoked for every stored result,
// used by the web layer to broadcast live updates.
func (e *Engine) SetResultHook(hook func(*database.Result)) {
	e.mu.Lock()
	e.resultHook = hook
	e.mu.Unlock()
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	logrus.Info("Starting monitoring engine")

	if err := e.syncServices(); err != nil {
		logrus.WithError(err).Error("Failed to sync services")
		return err
	}

	go e.runRetentionPurge(ctx)
	go e.runMetricsRefresh(ctx)

	return e.scheduler.Start(ctx)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	logrus.Info("Stopping monitoring engine")
	e.scheduler.Stop()
	e.running = false
}

// syncServices mirrors the registered services into the store so the
// API can serve the registry without re-reading the config file.
func (e *Engine) syncServices() error {
	ctx := context.Background()

	for _, svc := range e.Services() {
		url := svc.Endpoint.URL
		if url == "" {
			url = svc.Endpoint.WSDL
		}
		record := &database.Service{
			Name:     svc.Name,
			Protocol: svc.Protocol,
			URL:      url,
			Interval: svc.Interval(),
			Enabled:  svc.IsEnabled(),
			Tags:     svc.Tags,
		}

		if existing, err := e.store.GetService(ctx, svc.Name); err == nil {
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
		}

		if err := e.store.SaveService(ctx, record); err != nil {
			logrus.WithError(err).WithField("service", svc.Name).Error("Failed to sync service")
			continue
		}
	}

	return nil
}

// handleResult is the scheduler's result sink: persist, record metrics,
// notify, and fan out to the web layer.
func (e *Engine) handleResult(result *CheckResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := result.Record()
	if err := e.store.SaveResult(ctx, record); err != nil {
		logrus.WithError(err).WithField("service", result.Service).Error("Failed to store result")
	}

	e.metrics.RecordCheckResult(result.Service, result.Protocol, string(result.Verdict), result.Attempts, result.Latency)

	if e.mailer != nil {
		if err := e.mailer.Notify(ctx, record); err != nil {
			logrus.WithError(err).WithField("service", result.Service).Error("Failed to send notification")
		}
	}

	e.mu.RLock()
	hook := e.resultHook
	e.mu.RUnlock()
	if hook != nil {
		hook(record)
	}
}

func (e *Engine) runRetentionPurge(ctx context.Context) {
	ticker := time.NewTicker(e.config.Database.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-e.config.Database.HistoryRetention)
			purged, err := e.store.PurgeHistory(ctx, cutoff)
			if err != nil {
				logrus.WithError(err).Error("History purge failed")
				continue
			}
			if purged > 0 {
				logrus.WithField("purged", purged).Info("Purged result history")
			}
		}
	}
}

func (e *Engine) runMetricsRefresh(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.metrics.UpdateSystemMetrics(ctx); err != nil {
				logrus.WithError(err).Warn("Failed to update system metrics")
			}
		}
	}
}
