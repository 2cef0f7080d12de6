// internal/monitoring/scheduler.go - Central tick scheduler with worker pool
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"soapwatch/internal/config"
	"soapwatch/internal/flatten"
	"soapwatch/internal/metrics"
	"soapwatch/internal/transport"
	"soapwatch/internal/validation"
)

// ServiceSource supplies the current service set each tick, so config
// refreshes take effect without restarting the scheduler.
type ServiceSource func() []*config.ServiceConfig

// ResultSink receives every completed check result.
type ResultSink func(*CheckResult)

type Scheduler struct {
	cfg         *config.MonitoringConfig
	source      ServiceSource
	clients     map[string]transport.Client
	sink        ResultSink
	jobQueue    chan *Job
	resultQueue chan *CheckResult
	workers     []*Worker
	states      map[string]*runState
	now         func() time.Time
	running     bool
	mu          sync.RWMutex
}

type Job struct {
	Service *config.ServiceConfig
	Due     time.Time
}

// runState tracks per-service scheduling. A service has at most one
// check in flight; next_due only advances when a terminal result lands.
type runState struct {
	lastRun  time.Time
	nextDue  time.Time
	inFlight bool
}

type Worker struct {
	id        int
	scheduler *Scheduler
	jobs      chan *Job
	results   chan *CheckResult
	quit      chan bool
}

func NewScheduler(cfg *config.MonitoringConfig, source ServiceSource, clients map[string]transport.Client, sink ResultSink) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		source:      source,
		clients:     clients,
		sink:        sink,
		jobQueue:    make(chan *Job, 1000),
		resultQueue: make(chan *CheckResult, 1000),
		states:      make(map[string]*runState),
		now:         time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	logrus.WithField("workers", s.cfg.Workers).Info("Starting check scheduler")

	s.workers = make([]*Worker, s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		worker := &Worker{
			id:        i,
			scheduler: s,
			jobs:      s.jobQueue,
			results:   s.resultQueue,
			quit:      make(chan bool),
		}
		s.workers[i] = worker
		go worker.start(ctx)
		logrus.WithField("worker", i).Debug("Started worker")
	}

	go s.processResults()
	go s.tick(ctx)

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	logrus.Info("Stopping check scheduler")
	s.running = false

	for _, worker := range s.workers {
		worker.stop()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processTick(ctx)
		}
	}
}

// processTick enqueues every enabled, in-window, due service that does
// not already have a check in flight. Out-of-window and in-flight
// services are skipped without touching their next due time.
func (s *Scheduler) processTick(ctx context.Context) {
	now := s.now()
	scheduled := 0

	for _, svc := range s.source() {
		if !svc.IsEnabled() {
			continue
		}
		if !svc.Window.IsActive(now) {
			continue
		}

		s.mu.Lock()
		state, exists := s.states[svc.Name]
		if !exists {
			state = &runState{}
			s.states[svc.Name] = state
		}
		if state.inFlight || now.Before(state.nextDue) {
			s.mu.Unlock()
			continue
		}
		state.inFlight = true
		s.mu.Unlock()

		job := &Job{Service: svc, Due: now}
		select {
		case s.jobQueue <- job:
			scheduled++
		default:
			s.mu.Lock()
			state.inFlight = false
			s.mu.Unlock()
			logrus.WithField("service", svc.Name).Warn("Job queue full, dropping job")
		}
	}

	if scheduled > 0 {
		logrus.WithField("count", scheduled).Debug("Scheduled checks")
	}
}

func (s *Scheduler) processResults() {
	for result := range s.resultQueue {
		s.handleResult(result)
	}
}

// handleResult advances the service's schedule and hands the result to
// the sink. next_due is interval from completion, not from dispatch, so
// a slow retry sequence pushes the next check out rather than stacking.
func (s *Scheduler) handleResult(result *CheckResult) {
	s.mu.Lock()
	if state, ok := s.states[result.Service]; ok {
		state.lastRun = result.Timestamp
		state.nextDue = result.Timestamp.Add(intervalOf(result, s.source()))
		state.inFlight = false
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"service":  result.Service,
		"verdict":  result.Verdict,
		"attempts": result.Attempts,
		"duration": result.Latency,
	}).Debug("Check completed")

	if s.sink != nil {
		s.sink(result)
	}
}

// NextDue reports the service's next scheduled run, for the status API.
func (s *Scheduler) NextDue(service string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[service]
	if !ok {
		return time.Time{}, false
	}
	return state.nextDue, true
}

func intervalOf(result *CheckResult, services []*config.ServiceConfig) time.Duration {
	for _, svc := range services {
		if svc.Name == result.Service {
			return svc.Interval()
		}
	}
	return 5 * time.Minute
}

func (w *Worker) start(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.executeJob(ctx, job)
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) stop() {
	w.quit <- true
}

// executeJob runs the attempt loop for one check. A shutdown mid-retry
// discards the partial sequence without recording a result.
func (w *Worker) executeJob(ctx context.Context, job *Job) {
	result := w.scheduler.runCheck(ctx, job.Service)
	if result == nil {
		return
	}
	w.results <- result
}

func (s *Scheduler) runCheck(ctx context.Context, svc *config.ServiceConfig) *CheckResult {
	metrics.ChecksInFlight.Inc()
	defer metrics.ChecksInFlight.Dec()

	client, ok := s.clients[svc.Protocol]
	if !ok {
		return &CheckResult{
			Service:   svc.Name,
			Protocol:  svc.Protocol,
			Verdict:   validation.VerdictError,
			Reason:    fmt.Sprintf("no client for protocol %q", svc.Protocol),
			Attempts:  0,
			Timestamp: s.now(),
		}
	}

	policy := PolicyFor(svc, s.cfg)
	start := s.now()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		resp, err := client.Perform(attemptCtx, svc)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if Retryable(err) && attempt < policy.MaxAttempts {
				logrus.WithFields(logrus.Fields{
					"service": svc.Name,
					"attempt": attempt,
					"error":   err,
				}).Warn("Check attempt failed, retrying")

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(policy.DelayFor(attempt)):
				}
				continue
			}

			return &CheckResult{
				Service:   svc.Name,
				Protocol:  svc.Protocol,
				Verdict:   validation.VerdictError,
				Reason:    fmt.Sprintf("transport exhausted after %d attempts: %v", attempt, err),
				Attempts:  attempt,
				Latency:   s.now().Sub(start),
				Timestamp: s.now(),
			}
		}

		return s.classify(svc, resp, attempt, start)
	}

	// Unreachable: the loop always returns.
	return nil
}

// classify parses the payload and applies the service's pattern. Parse
// failures are terminal; the endpoint answered, so retrying would only
// fetch the same malformed document again.
func (s *Scheduler) classify(svc *config.ServiceConfig, resp *transport.Response, attempts int, start time.Time) *CheckResult {
	result := &CheckResult{
		Service:    svc.Name,
		Protocol:   svc.Protocol,
		Attempts:   attempts,
		StatusCode: resp.StatusCode,
		Latency:    s.now().Sub(start),
		Excerpt:    excerpt(resp.Payload),
		Timestamp:  s.now(),
	}

	tree, err := parsePayload(svc.Protocol, resp.Payload)
	if err != nil {
		result.Verdict = validation.VerdictError
		result.Reason = err.Error()
		return result
	}

	if svc.Pattern == nil {
		if resp.StatusCode >= 400 {
			result.Verdict = validation.VerdictFailure
			result.Reason = fmt.Sprintf("HTTP status %d", resp.StatusCode)
		} else {
			result.Verdict = validation.VerdictSuccess
			result.Reason = fmt.Sprintf("HTTP status %d", resp.StatusCode)
		}
		return result
	}

	result.Verdict, result.Reason = validation.Evaluate(flatten.Flatten(tree), svc.Pattern)
	return result
}

func parsePayload(protocol string, payload []byte) (interface{}, error) {
	if protocol == "soap" {
		tree, err := flatten.ParseXML(payload)
		if err != nil {
			return nil, err
		}
		return flatten.ExtractSOAPBody(tree), nil
	}
	return flatten.ParseJSON(payload)
}
