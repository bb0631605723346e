// Package router answers natural-language company queries by detecting the
// industry and querying the matching Supabase table.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/pkg/supabase"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Query describes one routing request. Text is the free-form query used for
// industry detection; Industry, when set, skips detection entirely.
type Query struct {
	Text           string
	Industry       string
	Location       string
	CompanyName    string
	MinPerformance *float64
	MaxPerformance *float64
	Limit          int
}

// Result is what RouteQuery always returns. A routing or query failure is
// reported through Industry ("unknown" or "error") and the Error field,
// never through a Go error: callers serving users should not crash on a
// query they cannot answer.
type Result struct {
	Industry  string          `json:"industry"`
	Table     string          `json:"table,omitempty"`
	Method    string          `json:"method,omitempty"` // explicit, keyword, pattern
	Companies []model.Company `json:"companies,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
}

// Router routes company queries to industry tables.
type Router struct {
	client       supabase.Client
	keywords     KeywordSet
	defaultLimit int
	maxLimit     int
	stats        Stats
}

// Option configures a Router.
type Option func(*Router)

// WithLimits overrides the default and maximum company counts returned per
// query. Zero values keep the built-in limits.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(r *Router) {
		if defaultLimit > 0 {
			r.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			r.maxLimit = maxLimit
		}
	}
}

// New creates a Router backed by the given Supabase client.
func New(client supabase.Client, keywords KeywordSet, opts ...Option) *Router {
	r := &Router{
		client:       client,
		keywords:     keywords,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DetectIndustry determines the industry for a query. An explicit industry
// field is matched against the table names and the keyword lists first;
// failing that, keyword scoring runs over the query text, the company name
// and the unmatched industry together, then the regex patterns. Returns ""
// when nothing matches.
func (r *Router) DetectIndustry(q Query) (industry, method string) {
	if q.Industry != "" {
		normalized := strings.ToLower(strings.TrimSpace(q.Industry))
		if _, ok := industryTables[normalized]; ok {
			return normalized, "explicit"
		}
		if ind := r.industryForKeyword(normalized); ind != "" {
			return ind, "explicit"
		}
	}

	text := strings.Join([]string{q.Text, q.CompanyName, q.Industry}, " ")
	if best := r.scoreKeywords(text); best != "" {
		return best, "keyword"
	}

	for _, p := range industryPatterns {
		if p.re.MatchString(text) {
			return p.industry, "pattern"
		}
	}
	return "", ""
}

// industryForKeyword returns the industry whose keyword list contains the
// word exactly. If override lists put the same word under several
// industries, the lexicographically smallest wins so results are
// deterministic.
func (r *Router) industryForKeyword(word string) string {
	best := ""
	for industry, words := range r.keywords.Keywords {
		for _, kw := range words {
			if kw == word && (best == "" || industry < best) {
				best = industry
			}
		}
	}
	return best
}

// scoreKeywords scores each industry against the query tokens. An exact
// token match scores 10, a token containing a keyword 5, and a shared
// prefix of at least three characters 8. The highest-scoring industry
// wins; ties go to the lexicographically smallest name so results are
// deterministic.
func (r *Router) scoreKeywords(text string) string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return ""
	}

	bestIndustry := ""
	bestScore := 0
	for industry, words := range r.keywords.Keywords {
		score := 0
		for _, kw := range words {
			for _, tok := range tokens {
				switch {
				case tok == kw:
					score += 10
				case strings.Contains(tok, kw):
					score += 5
				case len(tok) >= 4 && len(kw) >= 4 && tok[:3] == kw[:3]:
					score += 8
				}
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && industry < bestIndustry) {
			bestIndustry = industry
			bestScore = score
		}
	}
	return bestIndustry
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// RouteQuery detects the industry, builds a Supabase query from the filter
// fields and executes it. It never returns a Go error.
func (r *Router) RouteQuery(ctx context.Context, q Query) Result {
	start := time.Now()
	res := r.route(ctx, q)
	res.LatencyMS = time.Since(start).Milliseconds()

	r.stats.recordQuery(res.Error == "" && res.Industry != IndustryUnknown, res.LatencyMS)
	return res
}

func (r *Router) route(ctx context.Context, q Query) Result {
	industry, method := r.DetectIndustry(q)
	if industry == "" {
		zap.L().Info("router: no industry detected", zap.String("query", q.Text))
		return Result{Industry: IndustryUnknown}
	}

	table := TableForIndustry(industry)
	sq := r.buildCompanyQuery(q)

	var companies []model.Company
	err := resilience.Do(ctx, selectRetry(), func(ctx context.Context) error {
		companies = companies[:0]
		return r.client.Select(ctx, table, sq, &companies)
	})
	if err != nil {
		zap.L().Error("router: company query failed",
			zap.String("industry", industry),
			zap.String("table", table),
			zap.Error(err))
		return Result{Industry: "error", Table: table, Method: method, Error: err.Error()}
	}

	zap.L().Debug("router: query routed",
		zap.String("industry", industry),
		zap.String("method", method),
		zap.Int("companies", len(companies)))
	return Result{Industry: industry, Table: table, Method: method, Companies: companies}
}

// selectRetry is the retry policy for company reads. PostgREST reports
// overload through 429 and 5xx responses, which the default transient check
// does not see through the wrapped error string.
func selectRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
		ShouldRetry: func(err error) bool {
			if resilience.IsTransient(err) {
				return true
			}
			msg := err.Error()
			return strings.Contains(msg, "status 429") || strings.Contains(msg, "status 5")
		},
		OnRetry: resilience.RetryLogger("supabase", "select"),
	}
}

// buildCompanyQuery translates filter fields into PostgREST parameters.
// Results are always ordered by performance score, best first.
func (r *Router) buildCompanyQuery(q Query) supabase.Query {
	sq := supabase.NewQuery()
	if q.Location != "" {
		sq = sq.ILike("location", q.Location)
	}
	if q.CompanyName != "" {
		sq = sq.ILike("company_name", q.CompanyName)
	}
	if q.MinPerformance != nil {
		sq = sq.Gte("performance_score", *q.MinPerformance)
	}
	if q.MaxPerformance != nil {
		sq = sq.Lte("performance_score", *q.MaxPerformance)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > r.maxLimit {
		limit = r.maxLimit
	}
	return sq.OrderDesc("performance_score").Limit(limit)
}

// Stats tracks router activity in memory. All counters are guarded by a
// single mutex; the average latency is a running mean over all queries.
type Stats struct {
	mu           sync.Mutex
	totalQueries int
	successes    int
	failures     int
	avgLatencyMS float64
	emailsSent   int
	emailsFailed int
}

// StatsSnapshot is a point-in-time copy of the router counters.
type StatsSnapshot struct {
	TotalQueries int     `json:"total_queries"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	EmailsSent   int     `json:"emails_sent"`
	EmailsFailed int     `json:"emails_failed"`
}

func (s *Stats) recordQuery(success bool, latencyMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalQueries++
	if success {
		s.successes++
	} else {
		s.failures++
	}
	s.avgLatencyMS += (float64(latencyMS) - s.avgLatencyMS) / float64(s.totalQueries)
}

// RecordEmail counts one outreach email attempt against the router stats.
func (s *Stats) RecordEmail(sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sent {
		s.emailsSent++
	} else {
		s.emailsFailed++
	}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		TotalQueries: s.totalQueries,
		Successes:    s.successes,
		Failures:     s.failures,
		AvgLatencyMS: s.avgLatencyMS,
		EmailsSent:   s.emailsSent,
		EmailsFailed: s.emailsFailed,
	}
}

// Stats exposes the router's counters.
func (r *Router) Stats() *Stats {
	return &r.stats
}
