// internal/notifications/email.go - SMTP notification service
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"soapwatch/internal/config"
	"soapwatch/internal/database"
)

// SendFunc delivers one rendered message. Injectable for tests.
type SendFunc func(ctx context.Context, to []string, msg []byte) error

// Mailer sends check results over SMTP, filtered by verdict and rate
// limited per service.
type Mailer struct {
	config    *config.EmailConfig
	send      SendFunc
	throttler *Throttler
	subject   *template.Template
	body      *template.Template
}

// Throttler caps notifications per service and in total over a sliding
// window.
type Throttler struct {
	config        *config.ThrottleConfig
	serviceCounts map[string][]time.Time
	totalCounts   []time.Time
	now           func() time.Time
	mu            sync.Mutex
}

func NewMailer(cfg *config.EmailConfig) (*Mailer, error) {
	m := &Mailer{config: cfg}

	var err error
	if m.subject, err = template.New("subject").Parse(cfg.Subject); err != nil {
		return nil, fmt.Errorf("failed to parse subject template: %w", err)
	}
	if m.body, err = template.New("body").Parse(cfg.Template); err != nil {
		return nil, fmt.Errorf("failed to parse body template: %w", err)
	}

	if cfg.Throttle.Enabled {
		m.throttler = NewThrottler(&cfg.Throttle)
	}
	m.send = m.sendSMTP

	logrus.WithFields(logrus.Fields{
		"host":             cfg.Host,
		"recipients":       len(cfg.To),
		"throttle_enabled": cfg.Throttle.Enabled,
	}).Info("Email notifier initialized")

	return m, nil
}

func NewThrottler(cfg *config.ThrottleConfig) *Throttler {
	return &Throttler{
		config:        cfg,
		serviceCounts: make(map[string][]time.Time),
		totalCounts:   make([]time.Time, 0),
		now:           time.Now,
	}
}

// Notify sends one result if it passes the verdict filter and the
// throttle. A filtered or throttled result is not an error.
func (m *Mailer) Notify(ctx context.Context, result *database.Result) error {
	if !m.shouldNotify(result.Verdict) {
		return nil
	}

	if m.throttler != nil && m.throttler.IsThrottled(result.Service) {
		logrus.WithField("service", result.Service).Debug("Notification throttled")
		return nil
	}

	msg, err := m.render(result)
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	if err := m.send(ctx, m.config.To, msg); err != nil {
		return err
	}

	if m.throttler != nil {
		m.throttler.Record(result.Service)
	}

	logrus.WithFields(logrus.Fields{
		"service": result.Service,
		"verdict": result.Verdict,
	}).Info("Sent notification")

	return nil
}

func (m *Mailer) shouldNotify(verdict string) bool {
	if len(m.config.OnlyOnVerdict) == 0 {
		return true
	}
	for _, v := range m.config.OnlyOnVerdict {
		if v == verdict {
			return true
		}
	}
	return false
}

func (m *Mailer) render(result *database.Result) ([]byte, error) {
	data := map[string]interface{}{
		"Service":   result.Service,
		"Verdict":   result.Verdict,
		"Reason":    result.Reason,
		"Attempts":  result.Attempts,
		"Latency":   fmt.Sprintf("%.1fms", result.LatencyMS),
		"Timestamp": result.Timestamp.Format("2006-01-02 15:04:05"),
	}

	var subject bytes.Buffer
	if err := m.subject.Execute(&subject, data); err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if err := m.body.Execute(&body, data); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.config.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject.String())
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func (m *Mailer) sendSMTP(ctx context.Context, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.config.From, to, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	}
}

// IsThrottled reports whether the service or the total budget is
// exhausted for the current window.
func (t *Throttler) IsThrottled(service string) bool {
	if !t.config.Enabled {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	windowStart := t.now().Add(-t.config.Window)

	recent := 0
	for _, ts := range t.serviceCounts[service] {
		if ts.After(windowStart) {
			recent++
		}
	}
	if recent >= t.config.MaxPerService {
		return true
	}

	total := 0
	for _, ts := range t.totalCounts {
		if ts.After(windowStart) {
			total++
		}
	}
	return total >= t.config.MaxTotal
}

// Record counts one sent notification and drops entries that fell out
// of the window.
func (t *Throttler) Record(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	windowStart := now.Add(-t.config.Window)

	t.serviceCounts[service] = append(pruneTimes(t.serviceCounts[service], windowStart), now)
	t.totalCounts = append(pruneTimes(t.totalCounts, windowStart), now)
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, ts := range times {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
