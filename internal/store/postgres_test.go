package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func now() time.Time                 { return time.Now().UTC() }
func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM lead_states WHERE id = \$1`).
		WithArgs("nonexistent-lead").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLead(context.Background(), "nonexistent-lead")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_Roundtrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state := []byte(`{"id":"lead-1","company_name":"Acme Corp","stage":"outreach","score":0.82,"engagement_level":0.7}`)
	mock.ExpectQuery(`SELECT state FROM lead_states WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(state))

	lead, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", lead.CompanyName)
	assert.Equal(t, model.StageOutreach, lead.Stage)
	assert.InDelta(t, 0.82, lead.Score, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLead_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO lead_states .* ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "Acme Corp", "technology", "Austin, TX",
			"new", 0.0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead := &model.Lead{
		CompanyName: "Acme Corp",
		Industry:    "technology",
		Location:    "Austin, TX",
	}
	err := s.SaveLead(context.Background(), lead)
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, model.StageNew, lead.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM lead_states WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteLead(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListHighScoreLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"state"}).
		AddRow([]byte(`{"id":"a","company_name":"A","score":0.9}`)).
		AddRow([]byte(`{"id":"b","company_name":"B","score":0.85}`))
	mock.ExpectQuery(`SELECT state FROM lead_states WHERE score >= \$1`).
		WithArgs(0.8, 10).
		WillReturnRows(rows)

	leads, err := s.ListHighScoreLeads(context.Background(), 0.8, 10)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "A", leads[0].CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchLeads_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM lead_states WHERE true AND stage = \$1 AND company_name ILIKE \$2 ORDER BY score DESC LIMIT \$3`).
		WithArgs("outreach", "%acme%", 50).
		WillReturnRows(pgxmock.NewRows([]string{"state"}))

	_, err := s.SearchLeads(context.Background(), LeadFilter{
		Stage:       model.StageOutreach,
		CompanyName: "acme",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateWorkflowRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO workflow_executions`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateWorkflowRun(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", run.LeadID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteWorkflowRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE workflow_executions SET`).
		WithArgs("complete", "sales_handoff", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteWorkflowRun(context.Background(), "missing", model.RunStatusComplete, model.StageSalesHandoff, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListWorkflowRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "lead_id", "status", "final_stage", "error", "started_at", "completed_at"}).
		AddRow("run-2", "lead-1", "running", nil, nil, now(), nil).
		AddRow("run-1", "lead-1", "complete", strPtr("sales_handoff"), nil, now(), timePtr(now()))
	mock.ExpectQuery(`SELECT id, lead_id, status, final_stage, error, started_at, completed_at`).
		WithArgs("lead-1").
		WillReturnRows(rows)

	runs, err := s.ListWorkflowRuns(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, model.StageSalesHandoff, runs[1].FinalStage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dead_letter_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := s.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
