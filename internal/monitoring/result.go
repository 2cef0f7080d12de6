// internal/monitoring/result.go
package monitoring

import (
	"time"

	"soapwatch/internal/database"
	"soapwatch/internal/validation"
)

// maxExcerptLen caps how much of a raw payload a result carries for
// troubleshooting.
const maxExcerptLen = 512

// CheckResult is the outcome of one completed check, retries included.
type CheckResult struct {
	Service    string
	Protocol   string
	Verdict    validation.Verdict
	Reason     string
	Attempts   int
	StatusCode int
	Latency    time.Duration
	Excerpt    string
	Timestamp  time.Time
}

// Record converts the result into its stored form.
func (r *CheckResult) Record() *database.Result {
	return &database.Result{
		Service:    r.Service,
		Verdict:    string(r.Verdict),
		Reason:     r.Reason,
		Attempts:   r.Attempts,
		StatusCode: r.StatusCode,
		LatencyMS:  float64(r.Latency) / float64(time.Millisecond),
		Excerpt:    r.Excerpt,
		Timestamp:  r.Timestamp,
	}
}

func excerpt(payload []byte) string {
	if len(payload) <= maxExcerptLen {
		return string(payload)
	}
	return string(payload[:maxExcerptLen])
}
