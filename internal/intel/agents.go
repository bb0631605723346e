package intel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/leadflow/internal/model"
)

// AnalyzeBehavioral profiles how the buyer communicates and decides.
func (e *Engine) AnalyzeBehavioral(ctx context.Context, lead *model.Lead) BehavioralProfile {
	if e.llmEnabled() {
		var out BehavioralProfile
		prompt := fmt.Sprintf("Company: %s\nIndustry: %s\nEmployees: %d\nContact: %s",
			lead.CompanyName, lead.Industry, lead.SizeOrZero(), lead.ContactName)
		system := `You are a sales psychologist. Profile the likely buyer. Respond with JSON:
{"personality":"analytical|driver|expressive|amiable","communication_preferences":["..."],"decision_process":"...","psychological_triggers":["..."],"confidence":0.0}`
		if err := e.analyzeJSON(ctx, "behavioral", system, prompt, &out); err == nil {
			return out
		}
	}
	return fallbackBehavioral(lead)
}

func fallbackBehavioral(lead *model.Lead) BehavioralProfile {
	industry := strings.ToLower(lead.Industry)

	p := BehavioralProfile{
		Personality: PersonalityExpressive,
		Confidence:  0.5,
		Fallback:    true,
	}
	switch {
	case strings.Contains(industry, "tech") || strings.Contains(industry, "software"):
		p.Personality = PersonalityAnalytical
		p.Communication = []string{"data-backed claims", "technical depth", "async written follow-up"}
		p.Triggers = []string{"proof of scalability", "engineering time saved"}
	case strings.Contains(industry, "financ") || strings.Contains(industry, "insur"):
		p.Personality = PersonalityDriver
		p.Communication = []string{"short meetings", "ROI up front", "executive summary first"}
		p.Triggers = []string{"risk reduction", "measurable returns"}
	case strings.Contains(industry, "health"):
		p.Personality = PersonalityAmiable
		p.Communication = []string{"relationship building", "references from peers", "patient-outcome framing"}
		p.Triggers = []string{"compliance assurance", "staff burden relief"}
	default:
		p.Communication = []string{"case studies", "live demos"}
		p.Triggers = []string{"competitive advantage", "cost savings"}
	}

	if lead.SizeOrZero() > 500 {
		p.DecisionProcess = "committee purchase with procurement review"
	} else {
		p.DecisionProcess = "founder or department-head led, short cycle"
	}
	return p
}

// AnalyzeCompetitive assesses the prospect's market position.
func (e *Engine) AnalyzeCompetitive(ctx context.Context, lead *model.Lead) CompetitiveAnalysis {
	if e.llmEnabled() {
		var out CompetitiveAnalysis
		prompt := fmt.Sprintf("Company: %s\nIndustry: %s\nInsights: %s",
			lead.CompanyName, lead.Industry, lead.CompanyInsights)
		system := `You are a competitive intelligence analyst. Respond with JSON:
{"threats":["..."],"funding_signal":"...","market_opportunities":["..."],"positioning":"...","confidence":0.0}`
		if err := e.analyzeJSON(ctx, "competitive", system, prompt, &out); err == nil {
			return out
		}
	}
	return fallbackCompetitive(lead)
}

func fallbackCompetitive(lead *model.Lead) CompetitiveAnalysis {
	industry := strings.ToLower(lead.Industry)

	a := CompetitiveAnalysis{
		FundingSignal: "no public funding signals",
		Confidence:    0.5,
		Fallback:      true,
	}
	switch {
	case strings.Contains(industry, "tech") || strings.Contains(industry, "software"):
		a.Threats = []string{"well-funded entrants", "platform consolidation"}
		a.Opportunities = []string{"AI feature differentiation", "vertical specialization"}
		a.Positioning = "crowded market, differentiation pressure high"
	case strings.Contains(industry, "financ"):
		a.Threats = []string{"fintech disruption", "margin compression"}
		a.Opportunities = []string{"embedded finance partnerships", "regtech efficiency"}
		a.Positioning = "incumbent advantage, innovation lag"
	case strings.Contains(industry, "health"):
		a.Threats = []string{"reimbursement changes", "consolidation by larger systems"}
		a.Opportunities = []string{"telehealth expansion", "value-based care contracts"}
		a.Positioning = "regulated market, trust-driven"
	default:
		a.Threats = []string{"price competition"}
		a.Opportunities = []string{"digitization of manual workflows"}
		a.Positioning = "position unclear, discovery needed"
	}
	return a
}

// AnalyzeEconomic assesses macro conditions for the prospect's sector.
func (e *Engine) AnalyzeEconomic(ctx context.Context, lead *model.Lead) EconomicAnalysis {
	if e.llmEnabled() {
		var out EconomicAnalysis
		prompt := fmt.Sprintf("Industry: %s\nQuarter: %s", lead.Industry, currentQuarter(time.Now()))
		system := `You are a macro economist advising a sales team. Respond with JSON:
{"macro_indicators":["..."],"sector_health":0.0,"investment_climate":"...","timing_window":"...","confidence":0.0}`
		if err := e.analyzeJSON(ctx, "economic", system, prompt, &out); err == nil {
			return out
		}
	}
	return fallbackEconomic(lead, time.Now())
}

func fallbackEconomic(lead *model.Lead, now time.Time) EconomicAnalysis {
	industry := strings.ToLower(lead.Industry)

	a := EconomicAnalysis{
		Indicators: []string{"stable rate environment", "moderate IT budget growth"},
		Confidence: 0.5,
		Fallback:   true,
	}
	switch {
	case strings.Contains(industry, "tech") || strings.Contains(industry, "software"):
		a.SectorHealth = 0.8
		a.InvestmentClimate = "favorable for efficiency tooling"
	case strings.Contains(industry, "financ"):
		a.SectorHealth = 0.7
		a.InvestmentClimate = "selective, compliance-driven spend"
	case strings.Contains(industry, "health"):
		a.SectorHealth = 0.75
		a.InvestmentClimate = "steady, grant and budget-cycle bound"
	default:
		a.SectorHealth = 0.6
		a.InvestmentClimate = "cautious"
	}

	// Budget cycles make Q4 and Q1 the natural buying windows.
	switch currentQuarter(now) {
	case "Q4":
		a.TimingWindow = "year-end budget flush, act within the quarter"
	case "Q1":
		a.TimingWindow = "new budget year, planning conversations open"
	default:
		a.TimingWindow = "mid-year, build pipeline for Q4"
	}
	return a
}

func currentQuarter(t time.Time) string {
	return fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1)
}

// AnalyzePredictive forecasts the buying timeline and scenarios.
func (e *Engine) AnalyzePredictive(ctx context.Context, lead *model.Lead) PredictiveAnalysis {
	if e.llmEnabled() {
		var out PredictiveAnalysis
		system := `You are a revenue forecaster. Respond with JSON:
{"buying_timeline":"...","trend_forecast":"...","scenarios":[{"name":"optimistic","conversion":0.0,"narrative":"..."},{"name":"realistic","conversion":0.0,"narrative":"..."},{"name":"pessimistic","conversion":0.0,"narrative":"..."}],"confidence":0.0}`
		prompt := fmt.Sprintf(
			"Company: %s\nScore: %.2f\nEngagement: %.2f\nPredicted conversion: %.2f\nOutreach attempts: %d",
			lead.CompanyName, lead.Score, lead.EngagementLevel, lead.PredictedConversion, lead.OutreachAttempts)
		if err := e.analyzeJSON(ctx, "predictive", system, prompt, &out); err == nil {
			return out
		}
	}
	return fallbackPredictive(lead)
}

func fallbackPredictive(lead *model.Lead) PredictiveAnalysis {
	base := lead.PredictedConversion
	if base == 0 {
		base = 0.3
	}

	a := PredictiveAnalysis{
		Confidence: 0.55,
		Fallback:   true,
		Scenarios: []Scenario{
			{Name: "optimistic", Conversion: model.Clamp01(base * 1.3), Narrative: "champion emerges, budget confirmed early"},
			{Name: "realistic", Conversion: base, Narrative: "steady progression through evaluation"},
			{Name: "pessimistic", Conversion: model.Clamp01(base * 0.6), Narrative: "stalls in procurement or goes dark"},
		},
	}

	switch {
	case lead.EngagementLevel > 0.6:
		a.BuyingTimeline = "30-60 days"
		a.TrendForecast = "engagement trending up, momentum favors a near-term close"
	case lead.Score > 0.6:
		a.BuyingTimeline = "60-90 days"
		a.TrendForecast = "strong fit but engagement still building"
	default:
		a.BuyingTimeline = "90+ days"
		a.TrendForecast = "early stage, nurture before forecasting"
	}
	return a
}

// AnalyzeDocuments scans supplied document snippets for budget signals and
// risk markers.
func (e *Engine) AnalyzeDocuments(ctx context.Context, lead *model.Lead, docs []string) DocumentAnalysis {
	if len(docs) == 0 {
		return DocumentAnalysis{
			RiskLevel:   "low",
			KeyFindings: []string{"no documents supplied"},
			Confidence:  0.3,
			Fallback:    true,
		}
	}

	if e.llmEnabled() {
		var out DocumentAnalysis
		system := `You analyze business documents for a sales team. Respond with JSON:
{"budget_signals":["..."],"risk_level":"low|medium|high","key_findings":["..."],"confidence":0.0}`
		prompt := fmt.Sprintf("Company: %s\n\nDocuments:\n%s", lead.CompanyName, strings.Join(docs, "\n---\n"))
		if err := e.analyzeJSON(ctx, "document", system, prompt, &out); err == nil {
			return out
		}
	}
	return fallbackDocuments(docs)
}

func fallbackDocuments(docs []string) DocumentAnalysis {
	text := strings.ToLower(strings.Join(docs, "\n"))

	a := DocumentAnalysis{
		RiskLevel:  "low",
		Confidence: 0.45,
		Fallback:   true,
	}
	for _, signal := range []string{"budget", "funding", "investment", "$"} {
		if strings.Contains(text, signal) {
			a.BudgetSignals = append(a.BudgetSignals, "mentions "+signal)
		}
	}
	for _, marker := range []string{"lawsuit", "breach", "layoff", "restructuring"} {
		if strings.Contains(text, marker) {
			a.RiskLevel = "high"
			a.KeyFindings = append(a.KeyFindings, "risk marker: "+marker)
		}
	}
	if a.RiskLevel == "low" && len(a.BudgetSignals) == 0 {
		a.RiskLevel = "medium"
		a.KeyFindings = append(a.KeyFindings, "no budget signals found")
	}
	return a
}
