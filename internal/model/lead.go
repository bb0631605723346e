package model

import (
	"time"
)

// Stage represents a lead's position in the sales pipeline.
type Stage string

const (
	StageNew          Stage = "new"
	StageResearching  Stage = "researching"
	StageScoring      Stage = "scoring"
	StageOutreach     Stage = "outreach"
	StageSimulation   Stage = "simulation"
	StageQualified    Stage = "qualified"
	StageNurturing    Stage = "nurturing"
	StageSalesHandoff Stage = "sales_handoff"
	StageClosed       Stage = "closed"
)

// ValidStages lists every stage a lead can occupy, in pipeline order.
var ValidStages = []Stage{
	StageNew, StageResearching, StageScoring, StageOutreach,
	StageSimulation, StageQualified, StageNurturing,
	StageSalesHandoff, StageClosed,
}

// IsValid reports whether s is a known pipeline stage.
func (s Stage) IsValid() bool {
	for _, v := range ValidStages {
		if s == v {
			return true
		}
	}
	return false
}

// ScoreBand classifies a composite score into a named band.
type ScoreBand string

const (
	ScoreBandHigh   ScoreBand = "high"
	ScoreBandMedium ScoreBand = "medium"
	ScoreBandLow    ScoreBand = "low"
	ScoreBandNone   ScoreBand = "none"
)

// BandForScore maps a composite score to its band.
func BandForScore(score float64) ScoreBand {
	switch {
	case score >= 0.8:
		return ScoreBandHigh
	case score >= 0.6:
		return ScoreBandMedium
	case score >= 0.4:
		return ScoreBandLow
	default:
		return ScoreBandNone
	}
}

// Lead is the unit of work flowing through the pipeline.
type Lead struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
	// CompanySize is nil when headcount is unknown; scoring treats
	// unknown differently from zero.
	CompanySize *int `json:"company_size,omitempty"`
	// Revenue is annual revenue in USD, nil when unknown.
	Revenue      *float64 `json:"revenue,omitempty"`
	Location     string   `json:"location,omitempty"`
	ContactEmail string   `json:"contact_email,omitempty"`
	ContactName  string   `json:"contact_name,omitempty"`

	Stage Stage   `json:"stage"`
	Score float64 `json:"score"`

	ResearchCompleted bool     `json:"research_completed"`
	CompanyInsights   string   `json:"company_insights,omitempty"`
	PainPoints        []string `json:"pain_points,omitempty"`
	TechStack         []string `json:"tech_stack,omitempty"`

	OutreachAttempts int        `json:"outreach_attempts"`
	LastContact      *time.Time `json:"last_contact,omitempty"`
	EngagementLevel  float64    `json:"engagement_level"`
	ResponseRate     float64    `json:"response_rate"`

	SimulationCompleted bool    `json:"simulation_completed"`
	PredictedConversion float64 `json:"predicted_conversion"`
	RecommendedApproach string  `json:"recommended_approach,omitempty"`

	QualificationScore float64 `json:"qualification_score"`
	AssignedRep        string  `json:"assigned_rep,omitempty"`
	HandoffNotes       string  `json:"handoff_notes,omitempty"`

	Interactions []Interaction `json:"interactions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interaction records a single engagement event against a lead.
type Interaction struct {
	Type      string    `json:"type"` // "email_sent", "email_opened", "reply", ...
	Channel   string    `json:"channel,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SizeOrZero returns the headcount, or 0 when unknown.
func (l *Lead) SizeOrZero() int {
	if l.CompanySize == nil {
		return 0
	}
	return *l.CompanySize
}

// RecordInteraction appends an engagement event with the current time.
func (l *Lead) RecordInteraction(typ, detail string) {
	l.Interactions = append(l.Interactions, Interaction{
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// Clamp01 bounds a fractional metric to [0, 1]. All engagement, response,
// conversion and qualification values are clamped at write time so routing
// comparisons never see out-of-range inputs.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RunStatus represents the state of a workflow execution.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// WorkflowRun represents one pipeline execution for a lead.
type WorkflowRun struct {
	ID          string     `json:"id"`
	LeadID      string     `json:"lead_id"`
	Status      RunStatus  `json:"status"`
	FinalStage  Stage      `json:"final_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NodeStatus represents the state of a single node within a run.
type NodeStatus string

const (
	NodeStatusRunning  NodeStatus = "running"
	NodeStatusComplete NodeStatus = "complete"
	NodeStatusFailed   NodeStatus = "failed"
)

// NodeExecution records one node invocation within a workflow run.
type NodeExecution struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Node       string         `json:"node"`
	Status     NodeStatus     `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
}

// Company is the shape of an enriched company record in the research
// database, keyed by industry-specific table.
type Company struct {
	ID               string    `json:"id,omitempty"`
	Name             string    `json:"company_name"`
	Industry         string    `json:"industry,omitempty"`
	Location         string    `json:"location,omitempty"`
	EmployeeCount    int       `json:"employee_count,omitempty"`
	PerformanceScore float64   `json:"performance_score,omitempty"`
	Website          string    `json:"website,omitempty"`
	Revenue          string    `json:"revenue,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}
