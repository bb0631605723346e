package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// ErrLeadNotFound is returned when a lead ID does not exist.
var ErrLeadNotFound = eris.New("lead not found")

// LeadFilter specifies criteria for searching leads.
type LeadFilter struct {
	Stage       model.Stage `json:"stage,omitempty"`
	Industry    string      `json:"industry,omitempty"`
	CompanyName string      `json:"company_name,omitempty"` // substring match
	Location    string      `json:"location,omitempty"`     // substring match
	MinScore    *float64    `json:"min_score,omitempty"`
	MaxScore    *float64    `json:"max_score,omitempty"`
	SortBy      string      `json:"sort_by,omitempty"` // "score" (default), "created_at", "updated_at"
	Ascending   bool        `json:"ascending,omitempty"`
	Limit       int         `json:"limit,omitempty"` // default 50, capped at 100
}

// PipelineStats is an aggregate snapshot of lead distribution.
type PipelineStats struct {
	TotalLeads   int                 `json:"total_leads"`
	ByStage      map[model.Stage]int `json:"by_stage"`
	AvgScore     float64             `json:"avg_score"`
	HandedOff    int                 `json:"handed_off"`
	TotalRuns    int                 `json:"total_runs"`
	FailedRuns   int                 `json:"failed_runs"`
	DLQDepth     int                 `json:"dlq_depth"`
}

// Store defines the persistence interface for lead pipeline state.
type Store interface {
	// Leads
	SaveLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	DeleteLead(ctx context.Context, leadID string) error
	ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error)
	ListHighScoreLeads(ctx context.Context, minScore float64, limit int) ([]model.Lead, error)
	SearchLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	Stats(ctx context.Context) (*PipelineStats, error)

	// Workflow runs
	CreateWorkflowRun(ctx context.Context, leadID string) (*model.WorkflowRun, error)
	CompleteWorkflowRun(ctx context.Context, runID string, status model.RunStatus, finalStage model.Stage, runErr string) error
	GetWorkflowRun(ctx context.Context, runID string) (*model.WorkflowRun, error)
	ListWorkflowRuns(ctx context.Context, leadID string) ([]model.WorkflowRun, error)
	RecordNodeExecution(ctx context.Context, exec model.NodeExecution) error
	ListNodeExecutions(ctx context.Context, runID string) ([]model.NodeExecution, error)

	// Dead letter queue for failed outreach
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// normalizeFilter applies filter defaults and caps.
func normalizeFilter(f LeadFilter) LeadFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	switch f.SortBy {
	case "score", "created_at", "updated_at":
	default:
		f.SortBy = "score"
	}
	return f
}
