// Package pipeline orchestrates the lead workflow: research, scoring,
// outreach, simulation, qualification and sales handoff.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/scoring"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/anthropic"
	"github.com/sells-group/leadflow/pkg/mail"
	"github.com/sells-group/leadflow/pkg/salesforce"
)

// Node names. Each corresponds to one workflow step recorded per execution.
const (
	NodeResearch      = "research"
	NodeScoring       = "scoring"
	NodeOutreach      = "outreach"
	NodeSimulation    = "simulation"
	NodeQualification = "qualification"
	NodeHandoff       = "handoff"
)

// Result summarizes one completed workflow run.
type Result struct {
	RunID      string               `json:"run_id"`
	Lead       *model.Lead          `json:"lead"`
	FinalStage model.Stage          `json:"final_stage"`
	Trace      []string             `json:"trace"`
	Usage      anthropic.TokenUsage `json:"usage"`
	CostUSD    float64              `json:"cost_usd"`
}

// Pipeline executes the lead workflow graph.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	llm        anthropic.Client
	sender     mail.Sender
	salesforce salesforce.Client
	scorer     *scoring.Scorer
	thresholds scoring.Thresholds
	breakers   *resilience.ServiceBreakers
}

// New creates a Pipeline. The llm, sender and salesforce clients may be nil;
// every node that uses one has a deterministic fallback or skips the sync.
func New(
	cfg *config.Config,
	st store.Store,
	llm anthropic.Client,
	sender mail.Sender,
	sfClient salesforce.Client,
	scorer *scoring.Scorer,
	thresholds scoring.Thresholds,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		llm:        llm,
		sender:     sender,
		salesforce: sfClient,
		scorer:     scorer,
		thresholds: thresholds,
		breakers:   resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
}

// Breakers exposes the pipeline's per-service circuit breakers so the
// monitoring collector can report their states.
func (p *Pipeline) Breakers() *resilience.ServiceBreakers {
	return p.breakers
}

// Run executes the workflow for a single lead until it reaches a terminal
// route or the step budget runs out.
func (p *Pipeline) Run(ctx context.Context, lead *model.Lead) (*Result, error) {
	log := zap.L().With(zap.String("company", lead.CompanyName), zap.String("lead_id", lead.ID))
	log.Info("pipeline: starting workflow")

	if err := p.store.SaveLead(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "pipeline: save lead")
	}

	run, err := p.store.CreateWorkflowRun(ctx, lead.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	result := &Result{RunID: run.ID, Lead: lead}

	// Node tracking helper. Failures are recorded but routing decides
	// whether the run continues.
	trackNode := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		exec := model.NodeExecution{
			RunID:      run.ID,
			Node:       name,
			Status:     model.NodeStatusComplete,
			DurationMS: duration,
			Metadata:   meta,
		}
		if fnErr != nil {
			exec.Status = model.NodeStatusFailed
			exec.Error = fnErr.Error()
			log.Error("pipeline: node failed",
				zap.String("node", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr))
		} else {
			log.Info("pipeline: node complete",
				zap.String("node", name),
				zap.Int64("duration_ms", duration))
		}

		if recErr := p.store.RecordNodeExecution(ctx, exec); recErr != nil {
			log.Warn("pipeline: failed to record node execution", zap.Error(recErr))
		}
		result.Trace = append(result.Trace, name)
		return fnErr
	}

	current := NodeResearch
	if lead.ResearchCompleted {
		current = NodeScoring
	}

	maxSteps := p.cfg.Pipeline.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 25
	}

	var runErr error
	for step := 0; current != scoring.RouteEnd; step++ {
		if step >= maxSteps {
			runErr = eris.Errorf("pipeline: exceeded %d steps at node %s", maxSteps, current)
			break
		}
		if ctx.Err() != nil {
			runErr = eris.Wrap(ctx.Err(), "pipeline: cancelled")
			break
		}

		var next string
		switch current {
		case NodeResearch:
			nodeErr := trackNode(NodeResearch, func() (map[string]any, error) {
				return p.runResearch(ctx, lead, &result.Usage)
			})
			if nodeErr != nil {
				runErr = nodeErr
			}
			next = p.thresholds.RouteAfterResearch(lead)

		case NodeScoring:
			_ = trackNode(NodeScoring, func() (map[string]any, error) {
				return p.runScoring(lead)
			})
			next = p.thresholds.EvaluateScore(lead)

		case NodeOutreach:
			nodeErr := trackNode(NodeOutreach, func() (map[string]any, error) {
				return p.runOutreach(ctx, lead)
			})
			if nodeErr != nil {
				p.parkLead(ctx, lead, NodeOutreach, nodeErr)
				runErr = nodeErr
				next = scoring.RouteEnd
				break
			}
			next = p.thresholds.RouteAfterOutreach(lead)

		case NodeSimulation:
			_ = trackNode(NodeSimulation, func() (map[string]any, error) {
				return p.runSimulation(ctx, lead, &result.Usage)
			})
			next = p.thresholds.RouteAfterSimulation(lead)

		case NodeQualification:
			_ = trackNode(NodeQualification, func() (map[string]any, error) {
				return p.runQualification(lead)
			})
			next = p.thresholds.RouteAfterQualification(lead)

		case NodeHandoff:
			nodeErr := trackNode(NodeHandoff, func() (map[string]any, error) {
				return p.runHandoff(ctx, lead)
			})
			if nodeErr != nil {
				runErr = nodeErr
			}
			next = scoring.RouteEnd

		default:
			runErr = eris.Errorf("pipeline: unknown node %s", current)
			next = scoring.RouteEnd
		}

		if saveErr := p.store.SaveLead(ctx, lead); saveErr != nil {
			log.Warn("pipeline: failed to save lead", zap.Error(saveErr))
		}
		current = next
	}

	result.FinalStage = lead.Stage
	result.CostUSD = result.Usage.EstimateCost(p.cfg.Anthropic.HaikuModel)

	status := model.RunStatusComplete
	errMsg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		errMsg = runErr.Error()
	}
	if completeErr := p.store.CompleteWorkflowRun(ctx, run.ID, status, lead.Stage, errMsg); completeErr != nil {
		log.Warn("pipeline: failed to complete run", zap.Error(completeErr))
	}

	log.Info("pipeline: workflow finished",
		zap.String("run_id", run.ID),
		zap.String("final_stage", string(lead.Stage)),
		zap.Float64("score", lead.Score),
		zap.Strings("trace", result.Trace),
		zap.Float64("cost_usd", result.CostUSD))

	return result, runErr
}

// parkLead moves a lead whose outreach keeps failing onto the dead letter
// queue so a later retry can pick it up.
func (p *Pipeline) parkLead(ctx context.Context, lead *model.Lead, node string, cause error) {
	entry := resilience.NewDLQEntry(*lead, node, cause)
	if err := p.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("pipeline: failed to enqueue dead letter",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		return
	}
	zap.L().Warn("pipeline: lead parked on dead letter queue",
		zap.String("lead_id", lead.ID),
		zap.String("node", node),
		zap.String("error_type", entry.ErrorType))
}

// runScoring computes the composite score and moves the lead to scoring.
func (p *Pipeline) runScoring(lead *model.Lead) (map[string]any, error) {
	breakdown := p.scorer.Explain(lead)
	lead.Score = breakdown.Total
	lead.Stage = model.StageScoring

	return map[string]any{
		"score":            breakdown.Total,
		"company_size":     breakdown.CompanySize,
		"industry_fit":     breakdown.IndustryFit,
		"engagement":       breakdown.Engagement,
		"research_quality": breakdown.ResearchQuality,
		"response_rate":    breakdown.ResponseRate,
		"pain_points":      breakdown.PainPoints,
	}, nil
}
