// Package intel runs the strategic intelligence agents: behavioral,
// competitive, economic, predictive and document analysis, aggregated into
// an executive report.
package intel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

// agentTimeout bounds each LLM-backed analysis call.
const agentTimeout = 20 * time.Second

// Personality archetypes used by the behavioral agent.
const (
	PersonalityAnalytical = "analytical"
	PersonalityDriver     = "driver"
	PersonalityExpressive = "expressive"
	PersonalityAmiable    = "amiable"
)

// BehavioralProfile describes how the buyer is likely to communicate and
// decide.
type BehavioralProfile struct {
	Personality     string   `json:"personality"`
	Communication   []string `json:"communication_preferences"`
	DecisionProcess string   `json:"decision_process"`
	Triggers        []string `json:"psychological_triggers"`
	Confidence      float64  `json:"confidence"`
	Fallback        bool     `json:"fallback"`
}

// CompetitiveAnalysis covers the prospect's market position.
type CompetitiveAnalysis struct {
	Threats       []string `json:"threats"`
	FundingSignal string   `json:"funding_signal"`
	Opportunities []string `json:"market_opportunities"`
	Positioning   string   `json:"positioning"`
	Confidence    float64  `json:"confidence"`
	Fallback      bool     `json:"fallback"`
}

// EconomicAnalysis covers macro conditions for the prospect's sector.
type EconomicAnalysis struct {
	Indicators        []string `json:"macro_indicators"`
	SectorHealth      float64  `json:"sector_health"`
	InvestmentClimate string   `json:"investment_climate"`
	TimingWindow      string   `json:"timing_window"`
	Confidence        float64  `json:"confidence"`
	Fallback          bool     `json:"fallback"`
}

// Scenario is one branch of the predictive analysis.
type Scenario struct {
	Name       string  `json:"name"`
	Conversion float64 `json:"conversion"`
	Narrative  string  `json:"narrative"`
}

// PredictiveAnalysis forecasts the buying timeline.
type PredictiveAnalysis struct {
	BuyingTimeline string     `json:"buying_timeline"`
	TrendForecast  string     `json:"trend_forecast"`
	Scenarios      []Scenario `json:"scenarios"`
	Confidence     float64    `json:"confidence"`
	Fallback       bool       `json:"fallback"`
}

// DocumentAnalysis summarizes supplied document snippets.
type DocumentAnalysis struct {
	BudgetSignals []string `json:"budget_signals"`
	RiskLevel     string   `json:"risk_level"` // low, medium, high
	KeyFindings   []string `json:"key_findings"`
	Confidence    float64  `json:"confidence"`
	Fallback      bool     `json:"fallback"`
}

// Engine runs the agents. A nil LLM client keeps every agent on its
// deterministic path.
type Engine struct {
	llm anthropic.Client
	cfg *config.Config
}

// NewEngine creates an intel Engine.
func NewEngine(llm anthropic.Client, cfg *config.Config) *Engine {
	return &Engine{llm: llm, cfg: cfg}
}

// analyzeJSON runs one LLM analysis with the shared timeout. The returned
// error sends the caller to its fallback.
func (e *Engine) analyzeJSON(ctx context.Context, agent, system, prompt string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, agentTimeout)
	defer cancel()

	usage, err := anthropic.GenerateJSON(callCtx, e.llm, anthropic.MessageRequest{
		Model:     e.cfg.Anthropic.SonnetModel,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}, out)
	if err != nil {
		zap.L().Warn("intel: llm analysis failed, using fallback",
			zap.String("agent", agent),
			zap.Error(err))
		return err
	}
	usage.LogCost(e.cfg.Anthropic.SonnetModel, "intel_"+agent)
	return nil
}

// llmEnabled reports whether the LLM path should be attempted.
func (e *Engine) llmEnabled() bool {
	return e.llm != nil && !e.cfg.Anthropic.Disabled
}
