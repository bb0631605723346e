package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// Pool abstracts the pgx connection pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lead_states (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	industry     TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	stage        TEXT NOT NULL DEFAULT 'new',
	score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	state        JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id      TEXT NOT NULL REFERENCES lead_states(id),
	status       TEXT NOT NULL DEFAULT 'running',
	final_stage  TEXT,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS node_executions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES workflow_executions(id),
	node        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error       TEXT,
	metadata    JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead           JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_node    TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lead_states_stage ON lead_states(stage);
CREATE INDEX IF NOT EXISTS idx_lead_states_score ON lead_states(score DESC);
CREATE INDEX IF NOT EXISTS idx_lead_states_industry ON lead_states(industry);
CREATE INDEX IF NOT EXISTS idx_workflow_executions_lead_id ON workflow_executions(lead_id);
CREATE INDEX IF NOT EXISTS idx_node_executions_run_id ON node_executions(run_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveLead(ctx context.Context, lead *model.Lead) error {
	now := time.Now().UTC()
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.Stage == "" {
		lead.Stage = model.StageNew
	}

	stateJSON, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_states (id, company_name, industry, location, stage, score, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   company_name = $2, industry = $3, location = $4, stage = $5,
		   score = $6, state = $7, updated_at = $9`,
		lead.ID, lead.CompanyName, lead.Industry, lead.Location,
		string(lead.Stage), lead.Score, stateJSON, lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save lead %s", lead.ID)
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM lead_states WHERE id = $1`, leadID,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrLeadNotFound, "postgres: get lead %s", leadID)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}

	var l model.Lead
	if err := json.Unmarshal(stateJSON, &l); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal lead")
	}
	return &l, nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, leadID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lead_states WHERE id = $1`, leadID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lead %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM lead_states WHERE stage = $1 ORDER BY updated_at DESC LIMIT $2`,
		string(stage), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads by stage")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) ListHighScoreLeads(ctx context.Context, minScore float64, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM lead_states WHERE score >= $1 ORDER BY score DESC LIMIT $2`,
		minScore, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list high score leads")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) SearchLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	filter = normalizeFilter(filter)

	query := `SELECT state FROM lead_states WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND stage = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	if filter.Industry != "" {
		query += fmt.Sprintf(` AND industry = $%d`, argIdx)
		args = append(args, filter.Industry)
		argIdx++
	}
	if filter.CompanyName != "" {
		query += fmt.Sprintf(` AND company_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.CompanyName+"%")
		argIdx++
	}
	if filter.Location != "" {
		query += fmt.Sprintf(` AND location ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Location+"%")
		argIdx++
	}
	if filter.MinScore != nil {
		query += fmt.Sprintf(` AND score >= $%d`, argIdx)
		args = append(args, *filter.MinScore)
		argIdx++
	}
	if filter.MaxScore != nil {
		query += fmt.Sprintf(` AND score <= $%d`, argIdx)
		args = append(args, *filter.MaxScore)
		argIdx++
	}

	dir := "DESC"
	if filter.Ascending {
		dir = "ASC"
	}
	query += ` ORDER BY ` + filter.SortBy + ` ` + dir
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search leads")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{ByStage: make(map[model.Stage]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*), COALESCE(AVG(score), 0) FROM lead_states GROUP BY stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by stage")
	}
	defer rows.Close()

	var weightedScore float64
	for rows.Next() {
		var stage string
		var count int
		var avg float64
		if err := rows.Scan(&stage, &count, &avg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage stats")
		}
		stats.ByStage[model.Stage(stage)] = count
		stats.TotalLeads += count
		weightedScore += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats iterate")
	}
	if stats.TotalLeads > 0 {
		stats.AvgScore = weightedScore / float64(stats.TotalLeads)
	}
	stats.HandedOff = stats.ByStage[model.StageSalesHandoff]

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) FROM workflow_executions`,
	).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats runs")
	}

	depth, err := s.CountDLQ(ctx)
	if err != nil {
		return nil, err
	}
	stats.DLQDepth = depth

	return stats, nil
}

func (s *PostgresStore) CreateWorkflowRun(ctx context.Context, leadID string) (*model.WorkflowRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_executions (id, lead_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, leadID, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for lead %s", leadID)
	}

	return &model.WorkflowRun{
		ID:        id,
		LeadID:    leadID,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteWorkflowRun(ctx context.Context, runID string, status model.RunStatus, finalStage model.Stage, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_executions SET status = $1, final_stage = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(status), string(finalStage), pgNullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetWorkflowRun(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	var r model.WorkflowRun
	var finalStage, runErr *string
	var completedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, lead_id, status, final_stage, error, started_at, completed_at
		 FROM workflow_executions WHERE id = $1`, runID,
	).Scan(&r.ID, &r.LeadID, &r.Status, &finalStage, &runErr, &r.StartedAt, &completedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if finalStage != nil {
		r.FinalStage = model.Stage(*finalStage)
	}
	if runErr != nil {
		r.Error = *runErr
	}
	r.CompletedAt = completedAt
	return &r, nil
}

func (s *PostgresStore) ListWorkflowRuns(ctx context.Context, leadID string) ([]model.WorkflowRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, status, final_stage, error, started_at, completed_at
		 FROM workflow_executions WHERE lead_id = $1 ORDER BY started_at DESC`, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list runs for lead %s", leadID)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		var r model.WorkflowRun
		var finalStage, runErr *string
		var completedAt *time.Time
		if err := rows.Scan(&r.ID, &r.LeadID, &r.Status, &finalStage, &runErr, &r.StartedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if finalStage != nil {
			r.FinalStage = model.Stage(*finalStage)
		}
		if runErr != nil {
			r.Error = *runErr
		}
		r.CompletedAt = completedAt
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) RecordNodeExecution(ctx context.Context, exec model.NodeExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	var metaJSON []byte
	if exec.Metadata != nil {
		data, err := json.Marshal(exec.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal node metadata")
		}
		metaJSON = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO node_executions (id, run_id, node, status, duration_ms, error, metadata, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exec.ID, exec.RunID, exec.Node, string(exec.Status),
		exec.DurationMS, pgNullIfEmpty(exec.Error), metaJSON, exec.StartedAt,
	)
	return eris.Wrapf(err, "postgres: record node execution %s", exec.Node)
}

func (s *PostgresStore) ListNodeExecutions(ctx context.Context, runID string) ([]model.NodeExecution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, node, status, duration_ms, error, metadata, started_at
		 FROM node_executions WHERE run_id = $1 ORDER BY started_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list node executions")
	}
	defer rows.Close()

	var execs []model.NodeExecution
	for rows.Next() {
		var e model.NodeExecution
		var execErr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Node, &e.Status, &e.DurationMS, &execErr, &metaJSON, &e.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan node execution")
		}
		if execErr != nil {
			e.Error = *execErr
		}
		if metaJSON != nil {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal node metadata")
			}
		}
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "postgres: list node executions iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	leadJSON, err := json.Marshal(entry.Lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq lead")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead, error, error_type, failed_node, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $3, error_type = $4, failed_node = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, leadJSON, entry.Error, entry.ErrorType,
		entry.FailedNode, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead, error, error_type, failed_node, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	if filter.Node != "" {
		query += fmt.Sprintf(` AND failed_node = $%d`, argIdx)
		args = append(args, filter.Node)
		argIdx++
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var leadJSON []byte
		var failedNode *string
		if err := rows.Scan(&e.ID, &leadJSON, &e.Error, &e.ErrorType,
			&failedNode, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if failedNode != nil {
			e.FailedNode = *failedNode
		}
		if err := json.Unmarshal(leadJSON, &e.Lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq lead")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// helpers

func collectPgLeads(rows pgx.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		var l model.Lead
		if err := json.Unmarshal(stateJSON, &l); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: leads iterate")
}

func pgNullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	return &trimmed
}
