package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadflow/internal/model"
)

// StrategicReport aggregates the five agent analyses.
type StrategicReport struct {
	Company          string              `json:"company"`
	GeneratedAt      time.Time           `json:"generated_at"`
	ExecutiveSummary string              `json:"executive_summary"`
	Confidence       float64             `json:"confidence"`
	Behavioral       BehavioralProfile   `json:"behavioral"`
	Competitive      CompetitiveAnalysis `json:"competitive"`
	Economic         EconomicAnalysis    `json:"economic"`
	Predictive       PredictiveAnalysis  `json:"predictive"`
	Documents        DocumentAnalysis    `json:"documents"`
	Recommendations  []string            `json:"key_recommendations"`
	ImmediateActions []string            `json:"immediate_actions"`
	FollowUpTimeline string              `json:"follow_up_timeline"`
}

// GenerateReport fans the five agents out concurrently and aggregates their
// outputs. Agents never fail the report: each analysis carries its own
// fallback, so the errgroup exists purely for the fan-out.
func (e *Engine) GenerateReport(ctx context.Context, lead *model.Lead, docs []string) *StrategicReport {
	report := &StrategicReport{
		Company:     lead.CompanyName,
		GeneratedAt: time.Now().UTC(),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Behavioral = e.AnalyzeBehavioral(gCtx, lead)
		return nil
	})
	g.Go(func() error {
		report.Competitive = e.AnalyzeCompetitive(gCtx, lead)
		return nil
	})
	g.Go(func() error {
		report.Economic = e.AnalyzeEconomic(gCtx, lead)
		return nil
	})
	g.Go(func() error {
		report.Predictive = e.AnalyzePredictive(gCtx, lead)
		return nil
	})
	g.Go(func() error {
		report.Documents = e.AnalyzeDocuments(gCtx, lead, docs)
		return nil
	})
	_ = g.Wait()

	report.Confidence = (report.Behavioral.Confidence +
		report.Competitive.Confidence +
		report.Economic.Confidence +
		report.Predictive.Confidence +
		report.Documents.Confidence) / 5

	report.ExecutiveSummary = buildSummary(lead, report)
	report.Recommendations = buildRecommendations(report)
	report.ImmediateActions = buildActions(lead, report)
	report.FollowUpTimeline = report.Predictive.BuyingTimeline
	return report
}

func buildSummary(lead *model.Lead, r *StrategicReport) string {
	return fmt.Sprintf(
		"%s (%s) profiles as a %s buyer with a %s purchase path. Sector health %.0f%%, %s. Forecast timeline %s.",
		lead.CompanyName, lead.Industry,
		r.Behavioral.Personality, r.Behavioral.DecisionProcess,
		r.Economic.SectorHealth*100, r.Economic.TimingWindow,
		r.Predictive.BuyingTimeline)
}

func buildRecommendations(r *StrategicReport) []string {
	recs := []string{
		"Lead with " + firstOr(r.Behavioral.Communication, "a concise value summary"),
	}
	if len(r.Competitive.Opportunities) > 0 {
		recs = append(recs, "Frame around: "+r.Competitive.Opportunities[0])
	}
	if r.Documents.RiskLevel == "high" {
		recs = append(recs, "Address the identified risk findings before proposing terms")
	}
	return recs
}

func buildActions(lead *model.Lead, r *StrategicReport) []string {
	actions := []string{}
	if lead.OutreachAttempts == 0 {
		actions = append(actions, "Send the first outreach touch")
	}
	if r.Economic.TimingWindow != "" {
		actions = append(actions, "Align proposal with: "+r.Economic.TimingWindow)
	}
	if len(r.Behavioral.Triggers) > 0 {
		actions = append(actions, "Emphasize "+r.Behavioral.Triggers[0]+" in the next conversation")
	}
	return actions
}

func firstOr(items []string, def string) string {
	if len(items) > 0 {
		return items[0]
	}
	return def
}

// RenderJSON returns the report as indented JSON.
func (r *StrategicReport) RenderJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderText returns a human-readable report.
func (r *StrategicReport) RenderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategic Report: %s\n", r.Company)
	fmt.Fprintf(&b, "Generated: %s  Confidence: %.0f%%\n\n", r.GeneratedAt.Format(time.RFC3339), r.Confidence*100)
	b.WriteString(r.ExecutiveSummary + "\n\n")

	fmt.Fprintf(&b, "Buyer profile: %s (%s)\n", r.Behavioral.Personality, r.Behavioral.DecisionProcess)
	fmt.Fprintf(&b, "Positioning: %s\n", r.Competitive.Positioning)
	fmt.Fprintf(&b, "Investment climate: %s\n", r.Economic.InvestmentClimate)
	fmt.Fprintf(&b, "Timeline: %s\n\n", r.Predictive.BuyingTimeline)

	if len(r.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, rec := range r.Recommendations {
			b.WriteString("  - " + rec + "\n")
		}
	}
	if len(r.ImmediateActions) > 0 {
		b.WriteString("Immediate actions:\n")
		for _, a := range r.ImmediateActions {
			b.WriteString("  - " + a + "\n")
		}
	}
	return b.String()
}
