// Package outreach runs email campaigns against routed companies.
package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/internal/router"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/mail"
)

// SendResult records one campaign send.
type SendResult struct {
	Company   string `json:"company"`
	Recipient string `json:"recipient"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// CampaignResult summarizes a campaign run.
type CampaignResult struct {
	Industry string       `json:"industry"`
	Sent     int          `json:"sent"`
	Failed   int          `json:"failed"`
	Parked   int          `json:"parked"`
	Results  []SendResult `json:"results"`
}

// Campaign sends templated outreach to companies returned by the router.
type Campaign struct {
	sender      mail.Sender
	store       store.Store
	stats       *router.Stats
	limiter     *rate.Limiter
	from        string
	strikes     int
	maxAttempts int
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithRateLimit sets the per-second send rate. Default is one send per second.
func WithRateLimit(rps float64) Option {
	return func(c *Campaign) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithFailureStrikes sets how many delivery failures park a company on the
// dead letter queue. Default is 2.
func WithFailureStrikes(n int) Option {
	return func(c *Campaign) {
		if n > 0 {
			c.strikes = n
		}
	}
}

// WithMaxAttempts caps how many retry passes may re-attempt a parked
// company before it is considered exhausted.
func WithMaxAttempts(n int) Option {
	return func(c *Campaign) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// New creates a campaign runner. stats may be nil.
func New(sender mail.Sender, st store.Store, stats *router.Stats, fromName string, opts ...Option) *Campaign {
	c := &Campaign{
		sender:  sender,
		store:   st,
		stats:   stats,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		from:    fromName,
		strikes: 2,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run emails each company in the routed result, pacing sends through the
// rate limiter. Companies that fail delivery twice are parked on the dead
// letter queue for the retry pass.
func (c *Campaign) Run(ctx context.Context, routed router.Result) (*CampaignResult, error) {
	result := &CampaignResult{Industry: routed.Industry}

	for _, company := range routed.Companies {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}

		sr := c.sendToCompany(ctx, routed.Industry, company)
		result.Results = append(result.Results, sr)
		if sr.Sent {
			result.Sent++
		} else {
			result.Failed++
			if c.parkCompany(ctx, routed.Industry, company, sr.Error) {
				result.Parked++
			}
		}
	}

	zap.L().Info("outreach: campaign finished",
		zap.String("industry", routed.Industry),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("parked", result.Parked))
	return result, nil
}

func (c *Campaign) sendToCompany(ctx context.Context, industry string, company model.Company) SendResult {
	email := ComposeEmail(company, industry, c.from)
	sr := SendResult{Company: company.Name, Recipient: email.To}

	var lastErr error
	for attempt := 0; attempt < c.strikes; attempt++ {
		if err := c.sender.Send(ctx, email); err != nil {
			lastErr = err
			zap.L().Warn("outreach: send failed",
				zap.String("company", company.Name),
				zap.Int("strike", attempt+1),
				zap.Error(err))
			continue
		}
		sr.Sent = true
		break
	}

	if c.stats != nil {
		c.stats.RecordEmail(sr.Sent)
	}
	if !sr.Sent && lastErr != nil {
		sr.Error = lastErr.Error()
	}
	return sr
}

// parkCompany enqueues a failed company as a synthetic lead on the DLQ so
// the retry pass can pick it up. Returns false if the store rejects it.
func (c *Campaign) parkCompany(ctx context.Context, industry string, company model.Company, cause string) bool {
	if c.store == nil {
		return false
	}
	lead := model.Lead{
		CompanyName: company.Name,
		Industry:    industry,
		Location:    company.Location,
		Website:     company.Website,
		Stage:       model.StageOutreach,
	}
	if company.EmployeeCount > 0 {
		size := company.EmployeeCount
		lead.CompanySize = &size
	}
	entry := resilience.NewDLQEntry(lead, "campaign", fmt.Errorf("%s", cause))
	if c.maxAttempts > 0 {
		entry.MaxRetries = c.maxAttempts
	}
	if err := c.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("outreach: failed to park company",
			zap.String("company", company.Name),
			zap.Error(err))
		return false
	}
	return true
}

// RetryParked re-attempts delivery for DLQ entries that are due. Entries
// that succeed are removed; the rest stay with their retry count bumped.
func (c *Campaign) RetryParked(ctx context.Context) (*CampaignResult, error) {
	entries, err := c.store.ListDLQ(ctx, resilience.DLQFilter{Node: "campaign"})
	if err != nil {
		return nil, err
	}

	result := &CampaignResult{Industry: "retry"}
	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.CanRetry() || entry.NextRetryAt.After(now) {
			continue
		}
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return result, waitErr
		}

		email := ComposeEmail(companyFromLead(entry.Lead), entry.Lead.Industry, c.from)
		sr := SendResult{Company: entry.Lead.CompanyName, Recipient: email.To}
		if sendErr := c.sender.Send(ctx, email); sendErr != nil {
			sr.Error = sendErr.Error()
			result.Failed++
			entry.RetryCount++
			entry.LastFailedAt = time.Now().UTC()
			entry.NextRetryAt = entry.LastFailedAt.Add(retryBackoff(entry.RetryCount))
			if enqErr := c.store.EnqueueDLQ(ctx, entry); enqErr != nil {
				zap.L().Warn("outreach: failed to reschedule parked entry",
					zap.String("company", entry.Lead.CompanyName),
					zap.Error(enqErr))
			}
		} else {
			sr.Sent = true
			result.Sent++
			if rmErr := c.store.RemoveDLQ(ctx, entry.ID); rmErr != nil {
				zap.L().Warn("outreach: failed to remove retried entry", zap.Error(rmErr))
			}
		}
		if c.stats != nil {
			c.stats.RecordEmail(sr.Sent)
		}
		result.Results = append(result.Results, sr)
	}
	return result, nil
}

// retryBackoff doubles the wait per failed retry, capped at 30 minutes.
func retryBackoff(retries int) time.Duration {
	d := time.Minute * time.Duration(1<<retries)
	if d > 30*time.Minute {
		return 30 * time.Minute
	}
	return d
}

func companyFromLead(lead model.Lead) model.Company {
	return model.Company{
		Name:          lead.CompanyName,
		Industry:      lead.Industry,
		Location:      lead.Location,
		Website:       lead.Website,
		EmployeeCount: lead.SizeOrZero(),
	}
}

// ComposeEmail renders the campaign message for one company.
func ComposeEmail(company model.Company, industry, fromName string) mail.Email {
	pain := painPointFor(industry, company.PerformanceScore)
	subject := fmt.Sprintf("Quick question about %s", company.Name)

	var b strings.Builder
	b.WriteString("Hi there,\n\n")
	fmt.Fprintf(&b, "I work with %s teams and keep hearing about %s.\n\n", industryLabel(industry), pain)
	if company.PerformanceScore >= 80 {
		fmt.Fprintf(&b, "%s clearly performs well in its market, which usually means growth is creating new bottlenecks.\n\n", company.Name)
	} else {
		fmt.Fprintf(&b, "Companies like %s often see quick wins here.\n\n", company.Name)
	}
	b.WriteString("Open to a short call next week?\n\n")
	b.WriteString("Best,\n" + fromName + "\n")

	return mail.Email{
		To:       InferContactEmail(company),
		Subject:  subject,
		TextBody: b.String(),
	}
}

// painPointFor picks the lead pain point for the industry; high performers
// get the scaling variant.
func painPointFor(industry string, performanceScore float64) string {
	switch industry {
	case router.IndustryFinance:
		if performanceScore >= 80 {
			return "scaling compliance as transaction volume grows"
		}
		return "regulatory reporting overhead"
	case router.IndustryHealthcare:
		if performanceScore >= 80 {
			return "keeping patient data integrated across a growing footprint"
		}
		return "staff time lost to manual records work"
	case router.IndustryTechnology:
		if performanceScore >= 80 {
			return "keeping infrastructure costs in check while scaling"
		}
		return "engineering velocity slipping as systems grow"
	default:
		return "operational efficiency"
	}
}

func industryLabel(industry string) string {
	if industry == "" || industry == router.IndustryUnknown {
		return "operations"
	}
	return industry
}

// InferContactEmail returns a plausible contact mailbox for a company with
// no known address, preferring info@ on the company's own domain.
func InferContactEmail(company model.Company) string {
	domain := ""
	if company.Website != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(company.Website, "https://"), "http://")
		host = strings.TrimPrefix(host, "www.")
		if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
			host = host[:idx]
		}
		domain = host
	}
	if domain == "" {
		var b strings.Builder
		for _, r := range strings.ToLower(company.Name) {
			if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			return "info@example.com"
		}
		domain = b.String() + ".com"
	}
	return "info@" + domain
}
