package scoring

import "github.com/sells-group/leadflow/internal/model"

// Route names returned by the stage-transition functions. "end" terminates
// the pipeline for the lead.
const (
	RouteScoring       = "scoring"
	RouteOutreach      = "outreach"
	RouteSimulation    = "simulation"
	RouteQualification = "qualification"
	RouteHandoff       = "handoff"
	RouteEnd           = "end"
)

// Thresholds gate the stage transitions below.
type Thresholds struct {
	OutreachScore   float64 `yaml:"outreach_score"`
	SimulationScore float64 `yaml:"simulation_score"`
	MinimumScore    float64 `yaml:"minimum_score"`
	MaxOutreach     int     `yaml:"max_outreach"`
	MaxTotal        int     `yaml:"max_total"`
}

// DefaultThresholds returns the standard routing thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OutreachScore:   0.8,
		SimulationScore: 0.6,
		MinimumScore:    0.4,
		MaxOutreach:     3,
		MaxTotal:        5,
	}
}

// EvaluateScore decides the route after scoring. High scores go straight to
// outreach, medium scores to simulation first. Leads in the lowest viable
// band go to outreach only when at least two positive indicators back them
// up; everything below the minimum ends.
func (t Thresholds) EvaluateScore(lead *model.Lead) string {
	switch {
	case lead.Score >= t.OutreachScore:
		return RouteOutreach
	case lead.Score >= t.SimulationScore:
		return RouteSimulation
	case lead.Score >= t.MinimumScore:
		if positiveIndicators(lead) >= 2 {
			return RouteOutreach
		}
		return RouteSimulation
	default:
		return RouteEnd
	}
}

// positiveIndicators counts signals that a borderline lead is worth direct
// outreach: completed research, known pain points, some engagement, and a
// company big enough to matter.
func positiveIndicators(lead *model.Lead) int {
	n := 0
	if lead.ResearchCompleted {
		n++
	}
	if len(lead.PainPoints) > 0 {
		n++
	}
	if lead.EngagementLevel > 0.3 {
		n++
	}
	if lead.SizeOrZero() > 100 {
		n++
	}
	return n
}

// RouteAfterResearch sends researched leads on to scoring.
func (t Thresholds) RouteAfterResearch(lead *model.Lead) string {
	if lead.ResearchCompleted {
		return RouteScoring
	}
	return RouteEnd
}

// RouteAfterOutreach decides what follows an outreach attempt based on how
// the prospect responded.
func (t Thresholds) RouteAfterOutreach(lead *model.Lead) string {
	switch {
	case lead.EngagementLevel > 0.6 && lead.ResponseRate > 0.3:
		return RouteQualification
	case lead.EngagementLevel > 0.3:
		return RouteSimulation
	default:
		return RouteEnd
	}
}

// RouteAfterSimulation routes on the predicted conversion probability.
// Promising leads with outreach budget left get another attempt.
func (t Thresholds) RouteAfterSimulation(lead *model.Lead) string {
	switch {
	case lead.PredictedConversion > 0.7:
		return RouteQualification
	case lead.PredictedConversion > 0.4 && lead.OutreachAttempts < t.MaxOutreach:
		return RouteOutreach
	default:
		return RouteEnd
	}
}

// RouteAfterQualification hands qualified leads to sales; near-misses loop
// back to outreach while attempts remain.
func (t Thresholds) RouteAfterQualification(lead *model.Lead) string {
	switch {
	case lead.QualificationScore > 0.7:
		return RouteHandoff
	case lead.QualificationScore > 0.4 && lead.OutreachAttempts < t.MaxTotal:
		return RouteOutreach
	default:
		return RouteEnd
	}
}

// ShouldContinueOutreach reports whether another outreach attempt is
// worthwhile for this lead.
func (t Thresholds) ShouldContinueOutreach(lead *model.Lead) bool {
	return lead.OutreachAttempts < t.MaxTotal &&
		lead.EngagementLevel > 0.2 &&
		lead.Score > 0.4
}

// RequiresSimulation reports whether a lead that keeps going unanswered
// should be run through conversation simulation before more outreach.
func RequiresSimulation(lead *model.Lead) bool {
	return lead.OutreachAttempts > 1 &&
		lead.ResponseRate < 0.3 &&
		lead.Score > 0.5
}

// IsReadyForHandoff reports whether a lead meets every bar for a sales
// handoff.
func IsReadyForHandoff(lead *model.Lead) bool {
	return lead.QualificationScore > 0.7 &&
		lead.EngagementLevel > 0.6 &&
		lead.ResearchCompleted &&
		lead.ResponseRate > 0.3
}
