package pipeline

import (
	"github.com/sells-group/leadflow/internal/model"
)

// runQualification scores how ready the lead is for a sales conversation.
// Leads clearing the bar move toward handoff; the rest go to nurturing.
func (p *Pipeline) runQualification(lead *model.Lead) (map[string]any, error) {
	score := qualificationScore(lead)
	lead.QualificationScore = score

	if score > 0.7 {
		lead.Stage = model.StageQualified
	} else {
		lead.Stage = model.StageNurturing
	}
	lead.RecordInteraction("qualification", string(lead.Stage))

	return map[string]any{
		"qualification_score": score,
		"stage":               string(lead.Stage),
	}, nil
}

// qualificationScore weighs engagement, company size, identified pain points
// and responsiveness.
func qualificationScore(lead *model.Lead) float64 {
	score := 0.0
	if lead.EngagementLevel > 0.6 {
		score += 0.3
	}
	if lead.SizeOrZero() > 100 {
		score += 0.2
	}
	if len(lead.PainPoints) > 0 {
		score += 0.3
	}
	if lead.ResponseRate > 0.5 {
		score += 0.2
	}
	return score
}
