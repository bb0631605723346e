package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/scoring"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/mail"
)

func testServePipeline(t *testing.T) (store.Store, *pipeline.Pipeline) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	c := &config.Config{}
	c.Anthropic.Disabled = true
	c.Pipeline.MaxSteps = 25
	c.Pipeline.SimulationTimeoutSecs = 20
	c.Outreach.FailureStrikes = 2

	p := pipeline.New(c, st, nil, &mail.RecordingSender{}, nil,
		scoring.NewScorer(scoring.DefaultWeights()), scoring.DefaultThresholds())
	return st, p
}

func testServeMux(t *testing.T) *http.ServeMux {
	t.Helper()
	st, p := testServePipeline(t)
	return newServeMux(context.Background(), st, p, nil)
}

func TestServeHealth(t *testing.T) {
	mux := testServeMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Healthy bool                       `json:"healthy"`
		Checks  map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Healthy)
	assert.Contains(t, report.Checks, "store")
}

func TestServeStats(t *testing.T) {
	mux := testServeMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap, "total_leads")
	assert.Contains(t, snap, "dlq_depth")
}

func TestServeStats_ReportsBreakerStates(t *testing.T) {
	st, p := testServePipeline(t)
	p.Breakers().Get("anthropic")
	mux := newServeMux(context.Background(), st, p, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Breakers map[string]string `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "closed", snap.Breakers["anthropic"])
}

func TestServeWebhook_Validation(t *testing.T) {
	mux := testServeMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/lead",
		strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/lead",
		strings.NewReader(`{"industry":"technology"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "company_name is required")
}

func TestServeWebhook_Accepted(t *testing.T) {
	mux := testServeMux(t)

	body := `{"company_name":"Acme Corp","industry":"technology","company_size":50}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/lead",
		strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "Acme Corp", resp["company"])
}
