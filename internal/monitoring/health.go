package monitoring

import (
	"context"
	"time"

	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/supabase"
)

// CheckStatus is the outcome of one dependency check.
type CheckStatus struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthReport aggregates dependency checks for the status endpoint.
type HealthReport struct {
	Healthy   bool                   `json:"healthy"`
	Checks    map[string]CheckStatus `json:"checks"`
	CheckedAt time.Time              `json:"checked_at"`
}

// CheckHealth probes the store and, when configured, the research database.
// A nil supabase client skips that check.
func CheckHealth(ctx context.Context, st store.Store, sb supabase.Client) *HealthReport {
	report := &HealthReport{
		Healthy:   true,
		Checks:    make(map[string]CheckStatus),
		CheckedAt: time.Now().UTC(),
	}

	report.record("store", func() error {
		_, err := st.CountDLQ(ctx)
		return err
	})
	if sb != nil {
		report.record("supabase", func() error {
			return sb.Health(ctx)
		})
	}
	return report
}

func (r *HealthReport) record(name string, probe func() error) {
	start := time.Now()
	err := probe()
	status := CheckStatus{
		OK:        err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
		r.Healthy = false
	}
	r.Checks[name] = status
}
