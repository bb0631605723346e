package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/mail"
)

// runOutreach composes and sends one outreach email, then updates the
// engagement model. Repeated delivery failures surface as an error so the
// executor can park the lead.
func (p *Pipeline) runOutreach(ctx context.Context, lead *model.Lead) (map[string]any, error) {
	lead.Stage = model.StageOutreach

	email := composeOutreachEmail(lead, p.cfg.Mail.FromName)

	strikes := p.cfg.Outreach.FailureStrikes
	if strikes <= 0 {
		strikes = 2
	}

	if p.sender == nil {
		// Dry run: engagement still advances so routing can be exercised
		// without SMTP configured.
		zap.L().Info("pipeline: no mail sender configured, skipping delivery",
			zap.String("company", lead.CompanyName))
	} else {
		var lastErr error
		sent := false
		for attempt := 0; attempt < strikes; attempt++ {
			if err := p.sender.Send(ctx, email); err != nil {
				lastErr = err
				zap.L().Warn("pipeline: outreach send failed",
					zap.String("company", lead.CompanyName),
					zap.Int("strike", attempt+1),
					zap.Error(err))
				continue
			}
			sent = true
			break
		}
		if !sent {
			return map[string]any{"recipient": email.To, "sent": false}, lastErr
		}
	}

	// Model the prospect reaction. Real engagement tracking would come from
	// reply and open webhooks; here each touch nudges engagement upward.
	lead.OutreachAttempts++
	now := time.Now().UTC()
	lead.LastContact = &now
	lead.EngagementLevel = model.Clamp01(lead.EngagementLevel + 0.2)
	if lead.ResponseRate == 0 {
		lead.ResponseRate = 0.3
	}
	lead.RecordInteraction("email_sent", email.Subject)

	return map[string]any{
		"recipient": email.To,
		"sent":      true,
		"attempt":   lead.OutreachAttempts,
	}, nil
}

// composeOutreachEmail renders the outreach message for a lead.
func composeOutreachEmail(lead *model.Lead, fromName string) mail.Email {
	subject := fmt.Sprintf("Helping %s with %s", lead.CompanyName, primaryPainPoint(lead))

	var b strings.Builder
	greeting := "Hi there,"
	if lead.ContactName != "" {
		greeting = "Hi " + lead.ContactName + ","
	}
	b.WriteString(greeting + "\n\n")
	b.WriteString(fmt.Sprintf(
		"I've been following %s and noticed teams in %s often wrestle with %s.\n\n",
		lead.CompanyName, industryLabel(lead.Industry), primaryPainPoint(lead)))
	if lead.CompanyInsights != "" {
		b.WriteString(lead.CompanyInsights + "\n\n")
	}
	b.WriteString("Would a 20-minute call next week be worth exploring?\n\n")
	b.WriteString("Best,\n" + fromName + "\n")

	return mail.Email{
		To:       ContactEmail(lead),
		ToName:   lead.ContactName,
		Subject:  subject,
		TextBody: b.String(),
	}
}

func primaryPainPoint(lead *model.Lead) string {
	if len(lead.PainPoints) > 0 {
		return lead.PainPoints[0]
	}
	return "operational efficiency"
}

func industryLabel(industry string) string {
	if industry == "" {
		return "your space"
	}
	return industry
}

// ContactEmail returns the lead's contact address, inferring a generic
// mailbox from the company name when none is on file. The ladder prefers
// info@, then hello@, contact@ and sales@.
func ContactEmail(lead *model.Lead) string {
	if lead.ContactEmail != "" {
		return lead.ContactEmail
	}

	domain := companyDomain(lead)
	for _, prefix := range []string{"info", "hello", "contact", "sales"} {
		addr := prefix + "@" + domain
		if !hasInteractionWith(lead, addr) {
			return addr
		}
	}
	return "info@" + domain
}

// companyDomain derives a plausible domain from the website or company name.
func companyDomain(lead *model.Lead) string {
	if lead.Website != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(lead.Website, "https://"), "http://")
		host = strings.TrimPrefix(host, "www.")
		if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
			host = host[:idx]
		}
		if host != "" {
			return host
		}
	}

	name := strings.ToLower(lead.CompanyName)
	var b strings.Builder
	for _, r := range name {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "example.com"
	}
	return b.String() + ".com"
}

// hasInteractionWith reports whether an email to addr was already recorded.
func hasInteractionWith(lead *model.Lead, addr string) bool {
	for _, in := range lead.Interactions {
		if in.Type == "email_bounced" && strings.Contains(in.Detail, addr) {
			return true
		}
	}
	return false
}
