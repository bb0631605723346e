package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

const simulationSystemPrompt = `You are simulating how a B2B prospect would
respond to a sales conversation. Given the lead profile and interaction
history, estimate the probability the prospect converts to a qualified
opportunity and name the outreach approach most likely to land. Respond
with a JSON object:
{"predicted_conversion": 0.0, "recommended_approach": "...", "reasoning": "..."}
predicted_conversion must be between 0 and 1.`

type simulationOutput struct {
	PredictedConversion float64 `json:"predicted_conversion"`
	RecommendedApproach string  `json:"recommended_approach"`
	Reasoning           string  `json:"reasoning"`
}

// runSimulation estimates conversion probability, preferring the LLM with a
// hard timeout and falling back to a heuristic model.
func (p *Pipeline) runSimulation(ctx context.Context, lead *model.Lead, usage *anthropic.TokenUsage) (map[string]any, error) {
	lead.Stage = model.StageSimulation

	if p.llm != nil && !p.cfg.Anthropic.Disabled {
		timeout := time.Duration(p.cfg.Pipeline.SimulationTimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		simCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		meta, err := p.simulateWithLLM(simCtx, lead, usage)
		if err == nil {
			return meta, nil
		}
		zap.L().Warn("pipeline: llm simulation failed, using fallback",
			zap.String("company", lead.CompanyName),
			zap.Error(err))
	}

	lead.PredictedConversion = fallbackConversion(lead)
	lead.RecommendedApproach = approachForConversion(lead.PredictedConversion)
	lead.SimulationCompleted = true
	lead.RecordInteraction("simulation", "heuristic conversion estimate")
	return map[string]any{
		"fallback":             true,
		"predicted_conversion": lead.PredictedConversion,
		"recommended_approach": lead.RecommendedApproach,
	}, nil
}

func (p *Pipeline) simulateWithLLM(ctx context.Context, lead *model.Lead, usage *anthropic.TokenUsage) (map[string]any, error) {
	prompt := describeLead(lead)

	var out simulationOutput
	var u anthropic.TokenUsage
	err := p.breakers.Get("anthropic").Execute(ctx, func(ctx context.Context) error {
		var genErr error
		u, genErr = anthropic.GenerateJSON(ctx, p.llm, anthropic.MessageRequest{
			Model:     p.cfg.Anthropic.SonnetModel,
			MaxTokens: 512,
			System:    anthropic.BuildCachedSystemBlocks(simulationSystemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		}, &out)
		usage.Add(u)
		return genErr
	})
	if err != nil {
		return nil, err
	}

	lead.PredictedConversion = model.Clamp01(out.PredictedConversion)
	lead.RecommendedApproach = out.RecommendedApproach
	if lead.RecommendedApproach == "" {
		lead.RecommendedApproach = approachForConversion(lead.PredictedConversion)
	}
	lead.SimulationCompleted = true
	lead.RecordInteraction("simulation", out.Reasoning)
	u.LogCost(p.cfg.Anthropic.SonnetModel, NodeSimulation)

	return map[string]any{
		"fallback":             false,
		"predicted_conversion": lead.PredictedConversion,
		"recommended_approach": lead.RecommendedApproach,
	}, nil
}

// approachForConversion picks the outreach strategy matching the conversion
// estimate.
func approachForConversion(conversion float64) string {
	switch {
	case conversion >= 0.6:
		return "direct meeting request"
	case conversion >= 0.4:
		return "value-first nurture sequence"
	default:
		return "long-term drip campaign"
	}
}

// describeLead renders the lead profile for simulation prompts.
func describeLead(lead *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s (%s, %d employees)\n", lead.CompanyName, lead.Industry, lead.SizeOrZero())
	fmt.Fprintf(&b, "Score: %.2f, engagement: %.2f, response rate: %.2f\n",
		lead.Score, lead.EngagementLevel, lead.ResponseRate)
	fmt.Fprintf(&b, "Outreach attempts: %d\n", lead.OutreachAttempts)
	if len(lead.PainPoints) > 0 {
		fmt.Fprintf(&b, "Pain points: %s\n", strings.Join(lead.PainPoints, ", "))
	}
	if lead.CompanyInsights != "" {
		fmt.Fprintf(&b, "Insights: %s\n", lead.CompanyInsights)
	}
	for _, in := range lead.Interactions {
		fmt.Fprintf(&b, "- %s: %s\n", in.Type, in.Detail)
	}
	return b.String()
}

// fallbackConversion is the heuristic conversion model used when the LLM is
// unavailable: a 0.3 base plus bonuses for size, engagement, pain points and
// completed research, capped at 1.0.
func fallbackConversion(lead *model.Lead) float64 {
	conversion := 0.3
	if lead.SizeOrZero() > 500 {
		conversion += 0.2
	}
	if lead.EngagementLevel > 0.6 {
		conversion += 0.2
	}
	if len(lead.PainPoints) > 0 {
		conversion += 0.1
	}
	if lead.ResearchCompleted {
		conversion += 0.1
	}
	return model.Clamp01(conversion)
}
