// Package monitoring gathers pipeline health metrics, evaluates them
// against alert thresholds and runs service health checks.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	TotalLeads  int                 `json:"total_leads"`
	ByStage     map[model.Stage]int `json:"by_stage"`
	AvgScore    float64             `json:"avg_score"`
	HandedOff   int                 `json:"handed_off"`
	TotalRuns   int                 `json:"total_runs"`
	FailedRuns  int                 `json:"failed_runs"`
	RunFailRate float64             `json:"run_fail_rate"`
	DLQDepth    int                 `json:"dlq_depth"`

	// Circuit breaker states by service name.
	Breakers map[string]string `json:"breakers,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store and the shared circuit breakers.
type Collector struct {
	store    store.Store
	breakers *resilience.ServiceBreakers
}

// NewCollector creates a metrics collector. breakers may be nil.
func NewCollector(st store.Store, breakers *resilience.ServiceBreakers) *Collector {
	return &Collector{store: st, breakers: breakers}
}

// Collect gathers a snapshot of current system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect stats")
	}

	snap := &MetricsSnapshot{
		TotalLeads:  stats.TotalLeads,
		ByStage:     stats.ByStage,
		AvgScore:    stats.AvgScore,
		HandedOff:   stats.HandedOff,
		TotalRuns:   stats.TotalRuns,
		FailedRuns:  stats.FailedRuns,
		DLQDepth:    stats.DLQDepth,
		CollectedAt: time.Now().UTC(),
	}
	if snap.TotalRuns > 0 {
		snap.RunFailRate = float64(snap.FailedRuns) / float64(snap.TotalRuns)
	}

	if c.breakers != nil {
		states := c.breakers.States()
		if len(states) > 0 {
			snap.Breakers = make(map[string]string, len(states))
			for service, state := range states {
				snap.Breakers[service] = state.String()
			}
		}
	}
	return snap, nil
}
