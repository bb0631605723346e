package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

const researchSystemPrompt = `You are a B2B sales researcher. Given a company
profile, produce a concise research summary. Respond with a JSON object:
{"insights": "...", "pain_points": ["..."], "tech_stack": ["..."]}
Insights should be one or two sentences on growth and buying signals.`

type researchOutput struct {
	Insights   string   `json:"insights"`
	PainPoints []string `json:"pain_points"`
	TechStack  []string `json:"tech_stack"`
}

// runResearch enriches the lead with company insights, pain points and tech
// stack. The LLM path is preferred; any failure falls back to heuristics so
// the workflow always moves forward.
func (p *Pipeline) runResearch(ctx context.Context, lead *model.Lead, usage *anthropic.TokenUsage) (map[string]any, error) {
	lead.Stage = model.StageResearching

	if p.llm != nil && !p.cfg.Anthropic.Disabled {
		meta, err := p.researchWithLLM(ctx, lead, usage)
		if err == nil {
			return meta, nil
		}
		zap.L().Warn("pipeline: llm research failed, using fallback",
			zap.String("company", lead.CompanyName),
			zap.Error(err))
	}

	fallbackResearch(lead)
	lead.ResearchCompleted = true
	return map[string]any{"fallback": true, "pain_points": len(lead.PainPoints)}, nil
}

func (p *Pipeline) researchWithLLM(ctx context.Context, lead *model.Lead, usage *anthropic.TokenUsage) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Company: %s\nWebsite: %s\nIndustry: %s\nEmployees: %d\nLocation: %s",
		lead.CompanyName, lead.Website, lead.Industry, lead.SizeOrZero(), lead.Location,
	)

	var out researchOutput
	var u anthropic.TokenUsage
	err := p.breakers.Get("anthropic").Execute(ctx, func(ctx context.Context) error {
		var genErr error
		u, genErr = anthropic.GenerateJSON(ctx, p.llm, anthropic.MessageRequest{
			Model:     p.cfg.Anthropic.HaikuModel,
			MaxTokens: 1024,
			System:    anthropic.BuildCachedSystemBlocks(researchSystemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		}, &out)
		usage.Add(u)
		return genErr
	})
	if err != nil {
		return nil, err
	}

	lead.CompanyInsights = out.Insights
	lead.PainPoints = out.PainPoints
	lead.TechStack = out.TechStack
	lead.ResearchCompleted = true
	u.LogCost(p.cfg.Anthropic.HaikuModel, NodeResearch)

	return map[string]any{
		"fallback":    false,
		"pain_points": len(out.PainPoints),
		"tech_stack":  len(out.TechStack),
	}, nil
}

// fallbackResearch fills in heuristic research data keyed off the industry
// and company size.
func fallbackResearch(lead *model.Lead) {
	industry := strings.ToLower(lead.Industry)
	size := lead.SizeOrZero()

	switch {
	case strings.Contains(industry, "tech") || strings.Contains(industry, "software"):
		lead.PainPoints = []string{"scaling infrastructure", "engineering hiring", "technical debt"}
		lead.TechStack = []string{"aws", "kubernetes", "postgres"}
	case strings.Contains(industry, "health"):
		lead.PainPoints = []string{"compliance burden", "patient data silos", "staffing shortages"}
		lead.TechStack = []string{"epic", "azure", "sql server"}
	case strings.Contains(industry, "financ") || strings.Contains(industry, "insur"):
		lead.PainPoints = []string{"regulatory reporting", "legacy core systems", "fraud detection"}
		lead.TechStack = []string{"mainframe", "oracle", "java"}
	default:
		lead.PainPoints = []string{"manual processes", "data visibility"}
		lead.TechStack = []string{"spreadsheets", "email"}
	}

	switch {
	case size >= 1000:
		lead.CompanyInsights = "Large enterprise with established processes; long sales cycles but high contract value."
	case size >= 100:
		lead.CompanyInsights = "Mid-market company in a growth phase; likely evaluating tooling upgrades."
	case size > 0:
		lead.CompanyInsights = "Small company; price-sensitive but fast to decide."
	default:
		lead.CompanyInsights = "Company size unknown; qualify headcount early."
	}
}
