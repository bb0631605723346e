package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/salesforce"
)

// runHandoff assigns a sales rep by company size and syncs the lead into
// Salesforce when a client is configured. The CRM sync is best-effort: a
// failure is logged but does not undo the handoff.
func (p *Pipeline) runHandoff(ctx context.Context, lead *model.Lead) (map[string]any, error) {
	lead.AssignedRep = repForSize(lead.SizeOrZero())
	lead.Stage = model.StageSalesHandoff
	lead.HandoffNotes = handoffSummary(lead)
	lead.RecordInteraction("handoff", "assigned to "+lead.AssignedRep)

	meta := map[string]any{
		"assigned_rep": lead.AssignedRep,
		"sf_synced":    false,
	}

	if p.salesforce == nil {
		return meta, nil
	}

	sfID, err := p.syncToSalesforce(ctx, lead)
	if err != nil {
		zap.L().Error("pipeline: salesforce sync failed",
			zap.String("company", lead.CompanyName),
			zap.Error(err))
		meta["sf_error"] = err.Error()
		return meta, nil
	}
	meta["sf_synced"] = true
	meta["sf_id"] = sfID
	return meta, nil
}

// repForSize routes the handoff to the right team.
func repForSize(size int) string {
	switch {
	case size > 1000:
		return "enterprise_rep"
	case size > 100:
		return "mid_market_rep"
	default:
		return "smb_rep"
	}
}

// syncToSalesforce creates or updates the Lead record in the CRM.
func (p *Pipeline) syncToSalesforce(ctx context.Context, lead *model.Lead) (string, error) {
	fields := map[string]any{
		"Company":           lead.CompanyName,
		"Email":             ContactEmail(lead),
		"Website":           lead.Website,
		"Industry":          lead.Industry,
		"NumberOfEmployees": lead.SizeOrZero(),
		"Rating":            ratingForScore(lead.Score),
		"LeadSource":        "Leadflow Pipeline",
		"Description":       lead.HandoffNotes,
	}
	if lead.ContactName != "" {
		fields["LastName"] = lead.ContactName
	}

	existing, err := salesforce.FindLeadByCompany(ctx, p.salesforce, lead.CompanyName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		delete(fields, "LastName")
		if err := salesforce.UpdateLead(ctx, p.salesforce, existing.ID, fields); err != nil {
			return "", err
		}
		return existing.ID, nil
	}
	return salesforce.CreateLead(ctx, p.salesforce, fields)
}

func ratingForScore(score float64) string {
	switch {
	case score >= 0.8:
		return "Hot"
	case score >= 0.6:
		return "Warm"
	default:
		return "Cold"
	}
}

// handoffSummary condenses the workflow outcome for the CRM description.
func handoffSummary(lead *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score %.2f, qualification %.2f, engagement %.2f after %d outreach attempts.",
		lead.Score, lead.QualificationScore, lead.EngagementLevel, lead.OutreachAttempts)
	if lead.RecommendedApproach != "" {
		fmt.Fprintf(&b, " Recommended approach: %s.", lead.RecommendedApproach)
	}
	if len(lead.PainPoints) > 0 {
		fmt.Fprintf(&b, " Pain points: %s.", strings.Join(lead.PainPoints, ", "))
	}
	if lead.CompanyInsights != "" {
		b.WriteString(" " + lead.CompanyInsights)
	}
	return b.String()
}
