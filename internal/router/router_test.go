package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/supabase"
)

// fakeSupabase records the last Select call and returns canned companies.
type fakeSupabase struct {
	mu        sync.Mutex
	lastTable string
	lastQuery supabase.Query
	companies []model.Company
	err       error
}

func (f *fakeSupabase) Select(_ context.Context, table string, q supabase.Query, out any) error {
	f.mu.Lock()
	f.lastTable = table
	f.lastQuery = q
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	data, _ := json.Marshal(f.companies)
	return json.Unmarshal(data, out)
}

func (f *fakeSupabase) Health(context.Context) error { return nil }

func newTestRouter(fake *fakeSupabase) *Router {
	return New(fake, DefaultKeywords())
}

func TestDetectIndustry(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeSupabase{})

	tests := []struct {
		name       string
		query      Query
		wantInd    string
		wantMethod string
	}{
		{"explicit field", Query{Industry: "Healthcare", Text: "anything"}, "healthcare", "explicit"},
		{"explicit keyword alias", Query{Industry: "fintech"}, "finance", "explicit"},
		{"explicit biotech alias", Query{Industry: "biotech"}, "healthcare", "explicit"},
		{"explicit unknown falls through", Query{Industry: "retail", Text: "fintech lending firms"}, "finance", "keyword"},
		{"company name signal", Query{CompanyName: "FinTech Corp"}, "finance", "keyword"},
		{"unmatched industry still scores", Query{Industry: "pharmaceuticals"}, "healthcare", "keyword"},
		{"exact keyword", Query{Text: "fast growing fintech companies"}, "finance", "keyword"},
		{"substring keyword", Query{Text: "pharmaceuticals distributors"}, "healthcare", "keyword"},
		{"fuzzy prefix", Query{Text: "medicare plans"}, "healthcare", "keyword"},
		{"regex fallback", Query{Text: "list hedge fund firms"}, "finance", "pattern"},
		{"no match", Query{Text: "best pizza in town"}, "", ""},
		{"empty", Query{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ind, method := r.DetectIndustry(tt.query)
			assert.Equal(t, tt.wantInd, ind)
			assert.Equal(t, tt.wantMethod, method)
		})
	}
}

// Every keyword in the built-in vocabulary must resolve to its own
// industry, whether it arrives as an explicit industry or as query text.
func TestDetectIndustry_AllKeywords(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeSupabase{})

	for industry, words := range DefaultKeywords().Keywords {
		for _, kw := range words {
			ind, method := r.DetectIndustry(Query{Industry: kw})
			assert.Equalf(t, industry, ind, "explicit industry %q", kw)
			assert.Equalf(t, "explicit", method, "explicit industry %q", kw)

			ind, _ = r.DetectIndustry(Query{Text: kw})
			assert.Equalf(t, industry, ind, "query text %q", kw)
		}
	}
}

func TestRouteQuery_Success(t *testing.T) {
	fake := &fakeSupabase{companies: []model.Company{
		{Name: "Stripe", Industry: "technology", PerformanceScore: 95},
		{Name: "Datadog", Industry: "technology", PerformanceScore: 90},
	}}
	r := newTestRouter(fake)

	res := r.RouteQuery(context.Background(), Query{Text: "top saas companies"})
	assert.Equal(t, "technology", res.Industry)
	assert.Equal(t, "tech_companies", res.Table)
	assert.Equal(t, "keyword", res.Method)
	require.Len(t, res.Companies, 2)
	assert.Empty(t, res.Error)

	snap := r.Stats().Snapshot()
	assert.Equal(t, 1, snap.TotalQueries)
	assert.Equal(t, 1, snap.Successes)
}

func TestRouteQuery_UnknownIndustry(t *testing.T) {
	r := newTestRouter(&fakeSupabase{})

	res := r.RouteQuery(context.Background(), Query{Text: "nothing relevant here"})
	assert.Equal(t, IndustryUnknown, res.Industry)
	assert.Empty(t, res.Companies)
	assert.Empty(t, res.Error)

	snap := r.Stats().Snapshot()
	assert.Equal(t, 1, snap.Failures)
}

func TestRouteQuery_StoreError(t *testing.T) {
	fake := &fakeSupabase{err: errors.New("connection refused")}
	r := newTestRouter(fake)

	res := r.RouteQuery(context.Background(), Query{Text: "banking leaders"})
	assert.Equal(t, "error", res.Industry)
	assert.Equal(t, "finance_companies", res.Table)
	assert.Contains(t, res.Error, "connection refused")
}

func TestRouteQuery_FilterEncoding(t *testing.T) {
	fake := &fakeSupabase{}
	r := newTestRouter(fake)

	minPerf := 70.0
	r.RouteQuery(context.Background(), Query{
		Industry:       "technology",
		Location:       "austin",
		CompanyName:    "flow",
		MinPerformance: &minPerf,
		Limit:          500,
	})

	params, err := url.ParseQuery(fake.lastQuery.Encode())
	require.NoError(t, err)
	assert.Equal(t, "ilike.*austin*", params.Get("location"))
	assert.Equal(t, "ilike.*flow*", params.Get("company_name"))
	assert.Equal(t, "gte.70", params.Get("performance_score"))
	assert.Equal(t, "performance_score.desc", params.Get("order"))
	// Limits above the cap are clamped.
	assert.Equal(t, "100", params.Get("limit"))
}

func TestRouteQuery_DefaultLimit(t *testing.T) {
	fake := &fakeSupabase{}
	r := newTestRouter(fake)

	r.RouteQuery(context.Background(), Query{Industry: "finance"})

	params, err := url.ParseQuery(fake.lastQuery.Encode())
	require.NoError(t, err)
	assert.Equal(t, "50", params.Get("limit"))
}

func TestRouteQuery_ConfiguredLimits(t *testing.T) {
	fake := &fakeSupabase{}
	r := New(fake, DefaultKeywords(), WithLimits(10, 20))

	r.RouteQuery(context.Background(), Query{Industry: "finance"})
	params, err := url.ParseQuery(fake.lastQuery.Encode())
	require.NoError(t, err)
	assert.Equal(t, "10", params.Get("limit"))

	r.RouteQuery(context.Background(), Query{Industry: "finance", Limit: 500})
	params, err = url.ParseQuery(fake.lastQuery.Encode())
	require.NoError(t, err)
	assert.Equal(t, "20", params.Get("limit"))
}

func TestStats_RecordEmail(t *testing.T) {
	t.Parallel()
	var s Stats
	s.RecordEmail(true)
	s.RecordEmail(true)
	s.RecordEmail(false)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.EmailsSent)
	assert.Equal(t, 1, snap.EmailsFailed)
}

func TestStats_AvgLatency(t *testing.T) {
	t.Parallel()
	var s Stats
	s.recordQuery(true, 100)
	s.recordQuery(true, 200)
	s.recordQuery(false, 300)

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.TotalQueries)
	assert.Equal(t, 2, snap.Successes)
	assert.Equal(t, 1, snap.Failures)
	assert.InDelta(t, 200.0, snap.AvgLatencyMS, 0.001)
}

func TestLoadKeywords(t *testing.T) {
	t.Parallel()

	t.Run("empty path returns defaults", func(t *testing.T) {
		t.Parallel()
		ks, err := LoadKeywords("")
		require.NoError(t, err)
		assert.Contains(t, ks.Keywords["finance"], "fintech")
	})

	t.Run("override replaces industry list", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "keywords.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"keywords:\n  finance:\n    - neobank\n    - custody\n"), 0o644))

		ks, err := LoadKeywords(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"neobank", "custody"}, ks.Keywords["finance"])
		// Untouched industries keep defaults.
		assert.Contains(t, ks.Keywords["technology"], "saas")
	})

	t.Run("unknown industry rejected", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "keywords.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"keywords:\n  retail:\n    - shop\n"), 0o644))

		_, err := LoadKeywords(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown industry")
	})
}
