// internal/monitoring/retry.go - Retry policy for transport failures
package monitoring

import (
	"errors"
	"time"

	"soapwatch/internal/config"
	"soapwatch/internal/flatten"
	"soapwatch/internal/transport"
)

// RetryPolicy controls how a worker reacts to transport failures.
// Validation outcomes are terminal and never retried.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	Mode        string
	Delay       time.Duration
}

// PolicyFor resolves a service's retry settings against the global
// monitoring defaults.
func PolicyFor(svc *config.ServiceConfig, defaults *config.MonitoringConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts: svc.RetryCount(),
		Timeout:     svc.Timeout(),
		Mode:        defaults.DefaultBackoff.Mode,
		Delay:       defaults.DefaultBackoff.Delay,
	}
	if policy.MaxAttempts < 0 {
		policy.MaxAttempts = defaults.DefaultRetries
	}
	// retries: 0 still gets one attempt.
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Timeout <= 0 {
		policy.Timeout = time.Duration(defaults.DefaultTimeoutSeconds) * time.Second
	}
	if svc.Backoff != nil {
		policy.Mode = svc.Backoff.Mode
		policy.Delay = svc.Backoff.Delay
	}
	return policy
}

// DelayFor returns how long to wait after the given failed attempt
// (1-based). Incremental mode scales the base delay linearly.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.Mode == "incremental" {
		return p.Delay * time.Duration(attempt)
	}
	return p.Delay
}

// Retryable reports whether a failed attempt may be tried again.
// Network-level failures are; malformed payloads are not, since the
// endpoint answered and another request would get the same answer.
func Retryable(err error) bool {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return true
	}
	var perr *flatten.ParseError
	if errors.As(err, &perr) {
		return false
	}
	return false
}
