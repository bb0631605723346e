package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/scoring"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/mail"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anthropic.Disabled = true
	cfg.Anthropic.HaikuModel = "claude-haiku-4-5-20251001"
	cfg.Anthropic.SonnetModel = "claude-sonnet-4-5-20250929"
	cfg.Mail.FromName = "Sells Group"
	cfg.Outreach.FailureStrikes = 2
	cfg.Pipeline.MaxSteps = 25
	cfg.Pipeline.SimulationTimeoutSecs = 20
	return cfg
}

func newTestPipeline(t *testing.T, sender mail.Sender) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := New(testConfig(), st, nil, sender, nil,
		scoring.NewScorer(scoring.DefaultWeights()), scoring.DefaultThresholds())
	return p, st
}

func TestRun_StrongLeadReachesHandoff(t *testing.T) {
	sender := &mail.RecordingSender{}
	p, st := newTestPipeline(t, sender)

	size := 1200
	lead := &model.Lead{
		CompanyName:     "Acme Robotics",
		Website:         "https://acmerobotics.com",
		Industry:        "technology",
		CompanySize:     &size,
		EngagementLevel: 0.55,
	}

	result, err := p.Run(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StageSalesHandoff, result.FinalStage)
	assert.Equal(t, "enterprise_rep", lead.AssignedRep)
	assert.True(t, lead.ResearchCompleted)
	assert.NotEmpty(t, lead.PainPoints)
	assert.Greater(t, lead.OutreachAttempts, 0)
	require.NotNil(t, lead.LastContact)
	assert.True(t, lead.SimulationCompleted)
	assert.NotEmpty(t, lead.RecommendedApproach)
	assert.NotEmpty(t, lead.HandoffNotes)
	assert.Contains(t, lead.HandoffNotes, lead.RecommendedApproach)
	assert.NotEmpty(t, sender.Sent())

	// Every node execution was persisted in order.
	execs, err := st.ListNodeExecutions(context.Background(), result.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, execs)
	assert.Equal(t, NodeResearch, execs[0].Node)
	assert.Equal(t, result.Trace[len(result.Trace)-1], NodeHandoff)

	run, err := st.GetWorkflowRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.StageSalesHandoff, run.FinalStage)
}

func TestRun_WeakLeadEndsAfterScoring(t *testing.T) {
	sender := &mail.RecordingSender{}
	p, _ := newTestPipeline(t, sender)

	size := 10
	lead := &model.Lead{
		CompanyName:       "Corner Store",
		Industry:          "retail",
		CompanySize:       &size,
		ResearchCompleted: true,
	}

	result, err := p.Run(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StageScoring, result.FinalStage)
	assert.Less(t, lead.Score, 0.4)
	assert.Empty(t, sender.Sent())
	assert.Equal(t, []string{NodeScoring}, result.Trace)
}

func TestRun_OutreachFailureParksLead(t *testing.T) {
	sender := &mail.RecordingSender{Err: errors.New("smtp: connection reset by peer")}
	p, st := newTestPipeline(t, sender)

	// High-score profile so scoring routes straight to outreach.
	size := 1200
	lead := &model.Lead{
		CompanyName:       "Bigco",
		Industry:          "technology",
		CompanySize:       &size,
		EngagementLevel:   0.9,
		ResponseRate:      0.6,
		ResearchCompleted: true,
		CompanyInsights:   "expanding rapidly",
		TechStack:         []string{"aws"},
		PainPoints:        []string{"a", "b", "c"},
	}

	result, err := p.Run(context.Background(), lead)
	require.Error(t, err)

	count, dlqErr := st.CountDLQ(context.Background())
	require.NoError(t, dlqErr)
	assert.Equal(t, 1, count)

	entries, listErr := st.ListDLQ(context.Background(), resilience.DLQFilter{})
	require.NoError(t, listErr)
	require.Len(t, entries, 1)
	assert.Equal(t, NodeOutreach, entries[0].FailedNode)
	assert.Equal(t, "Bigco", entries[0].Lead.CompanyName)

	run, runErr := st.GetWorkflowRun(context.Background(), result.RunID)
	require.NoError(t, runErr)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestRun_MaxStepsGuard(t *testing.T) {
	sender := &mail.RecordingSender{}
	p, _ := newTestPipeline(t, sender)
	p.cfg.Pipeline.MaxSteps = 2

	size := 1200
	lead := &model.Lead{
		CompanyName:     "Loopy Inc",
		Industry:        "technology",
		CompanySize:     &size,
		EngagementLevel: 0.55,
	}

	_, err := p.Run(context.Background(), lead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 2 steps")
}

func TestContactEmail(t *testing.T) {
	t.Parallel()

	t.Run("explicit address wins", func(t *testing.T) {
		t.Parallel()
		lead := &model.Lead{ContactEmail: "jane@acme.com", CompanyName: "Acme"}
		assert.Equal(t, "jane@acme.com", ContactEmail(lead))
	})

	t.Run("derives domain from website", func(t *testing.T) {
		t.Parallel()
		lead := &model.Lead{Website: "https://www.acme.com/about", CompanyName: "Acme"}
		assert.Equal(t, "info@acme.com", ContactEmail(lead))
	})

	t.Run("derives domain from company name", func(t *testing.T) {
		t.Parallel()
		lead := &model.Lead{CompanyName: "Acme Robotics, Inc."}
		assert.Equal(t, "info@acmeroboticsinc.com", ContactEmail(lead))
	})

	t.Run("skips bounced mailboxes", func(t *testing.T) {
		t.Parallel()
		lead := &model.Lead{
			CompanyName: "Acme",
			Interactions: []model.Interaction{
				{Type: "email_bounced", Detail: "bounce from info@acme.com"},
			},
		}
		assert.Equal(t, "hello@acme.com", ContactEmail(lead))
	})
}

func TestComposeOutreachEmail(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{
		CompanyName: "Acme Corp",
		Industry:    "technology",
		ContactName: "Jane",
		PainPoints:  []string{"scaling infrastructure"},
	}
	email := composeOutreachEmail(lead, "Sells Group")

	assert.Contains(t, email.Subject, "Acme Corp")
	assert.Contains(t, email.Subject, "scaling infrastructure")
	assert.Contains(t, email.TextBody, "Hi Jane,")
	assert.Contains(t, email.TextBody, "Sells Group")
}

func TestRepForSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "enterprise_rep", repForSize(1500))
	assert.Equal(t, "mid_market_rep", repForSize(500))
	assert.Equal(t, "smb_rep", repForSize(50))
	assert.Equal(t, "smb_rep", repForSize(0))
}

func TestBreakersExposed(t *testing.T) {
	p, _ := newTestPipeline(t, &mail.RecordingSender{})
	require.NotNil(t, p.Breakers())

	p.Breakers().Get("anthropic")
	states := p.Breakers().States()
	assert.Equal(t, resilience.CircuitClosed, states["anthropic"])
}

func TestApproachForConversion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "direct meeting request", approachForConversion(0.8))
	assert.Equal(t, "value-first nurture sequence", approachForConversion(0.5))
	assert.Equal(t, "long-term drip campaign", approachForConversion(0.2))
}

func TestFallbackConversion(t *testing.T) {
	t.Parallel()

	// Base rate only.
	assert.InDelta(t, 0.3, fallbackConversion(&model.Lead{}), 0.001)

	// All bonuses.
	size := 600
	lead := &model.Lead{
		CompanySize:       &size,
		EngagementLevel:   0.7,
		PainPoints:        []string{"x"},
		ResearchCompleted: true,
	}
	assert.InDelta(t, 0.9, fallbackConversion(lead), 0.001)
}

func TestQualificationScore(t *testing.T) {
	t.Parallel()

	size := 500
	lead := &model.Lead{
		CompanySize:     &size,
		EngagementLevel: 0.7,
		ResponseRate:    0.6,
		PainPoints:      []string{"x"},
	}
	assert.InDelta(t, 1.0, qualificationScore(lead), 0.001)
	assert.InDelta(t, 0.0, qualificationScore(&model.Lead{}), 0.001)
}

func TestFallbackResearch_IndustryTables(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{Industry: "healthcare"}
	fallbackResearch(lead)
	assert.Contains(t, lead.PainPoints, "compliance burden")

	lead = &model.Lead{Industry: "finance"}
	fallbackResearch(lead)
	assert.Contains(t, lead.PainPoints, "regulatory reporting")

	lead = &model.Lead{Industry: "logistics"}
	fallbackResearch(lead)
	assert.Contains(t, lead.PainPoints, "manual processes")
}

func TestRatingForScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Hot", ratingForScore(0.85))
	assert.Equal(t, "Warm", ratingForScore(0.65))
	assert.Equal(t, "Cold", ratingForScore(0.3))
}
