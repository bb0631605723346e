// Package scoring computes composite lead scores and decides stage
// transitions in the lead pipeline.
package scoring

import (
	"math"

	"github.com/sells-group/leadflow/internal/model"
)

// Weights are the composite score weights. They must sum to 1.0.
type Weights struct {
	CompanySize     float64 `yaml:"company_size"`
	IndustryFit     float64 `yaml:"industry_fit"`
	Engagement      float64 `yaml:"engagement"`
	ResearchQuality float64 `yaml:"research_quality"`
	ResponseRate    float64 `yaml:"response_rate"`
	PainPoints      float64 `yaml:"pain_points"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		CompanySize:     0.2,
		IndustryFit:     0.15,
		Engagement:      0.25,
		ResearchQuality: 0.15,
		ResponseRate:    0.15,
		PainPoints:      0.1,
	}
}

func (w Weights) sum() float64 {
	return w.CompanySize + w.IndustryFit + w.Engagement + w.ResearchQuality + w.ResponseRate + w.PainPoints
}

// Breakdown is the per-factor contribution behind a composite score.
type Breakdown struct {
	CompanySize     float64 `json:"company_size"`
	IndustryFit     float64 `json:"industry_fit"`
	Engagement      float64 `json:"engagement"`
	ResearchQuality float64 `json:"research_quality"`
	ResponseRate    float64 `json:"response_rate"`
	PainPoints      float64 `json:"pain_points"`
	Total           float64 `json:"total"`
}

// Scorer computes composite lead scores.
type Scorer struct {
	weights Weights
}

// NewScorer builds a Scorer. Zero-valued weights fall back to the defaults.
func NewScorer(w Weights) *Scorer {
	if w.sum() == 0 {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Score returns the composite score for a lead, capped at 1.0.
func (s *Scorer) Score(lead *model.Lead) float64 {
	return s.Explain(lead).Total
}

// Explain computes the composite score with its per-factor breakdown.
func (s *Scorer) Explain(lead *model.Lead) Breakdown {
	b := Breakdown{
		CompanySize:     s.weights.CompanySize * sizeScore(lead.CompanySize),
		IndustryFit:     s.weights.IndustryFit * industryFitScore(lead.Industry),
		Engagement:      s.weights.Engagement * model.Clamp01(lead.EngagementLevel),
		ResearchQuality: s.weights.ResearchQuality * researchScore(lead),
		ResponseRate:    s.weights.ResponseRate * model.Clamp01(lead.ResponseRate),
		PainPoints:      s.weights.PainPoints * painPointScore(lead.PainPoints),
	}
	total := b.CompanySize + b.IndustryFit + b.Engagement + b.ResearchQuality + b.ResponseRate + b.PainPoints
	b.Total = math.Min(total, 1.0)
	return b
}

// sizeScore buckets headcount. Unknown size gets a neutral 0.5 so missing
// data neither rewards nor punishes a lead.
func sizeScore(size *int) float64 {
	if size == nil {
		return 0.5
	}
	switch n := *size; {
	case n >= 1000:
		return 1.0
	case n >= 500:
		return 0.9
	case n >= 200:
		return 0.8
	case n >= 100:
		return 0.7
	case n >= 50:
		return 0.6
	default:
		return 0.4
	}
}

var industryFit = map[string]float64{
	"technology": 0.9,
	"software":   0.9,
	"fintech":    0.9,
	"finance":    0.7,
	"healthcare": 0.7,
	"insurance":  0.7,
}

func industryFitScore(industry string) float64 {
	if fit, ok := industryFit[industry]; ok {
		return fit
	}
	return 0.6
}

func researchScore(lead *model.Lead) float64 {
	if !lead.ResearchCompleted {
		return 0.0
	}
	score := 0.5
	if lead.CompanyInsights != "" {
		score += 0.25
	}
	if len(lead.TechStack) > 0 {
		score += 0.25
	}
	return score
}

func painPointScore(painPoints []string) float64 {
	switch n := len(painPoints); {
	case n >= 3:
		return 1.0
	case n == 2:
		return 0.8
	case n == 1:
		return 0.5
	default:
		return 0.0
	}
}
