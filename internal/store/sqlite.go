package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lead_states (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	industry     TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	stage        TEXT NOT NULL DEFAULT 'new',
	score        REAL NOT NULL DEFAULT 0,
	state        TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL REFERENCES lead_states(id),
	status       TEXT NOT NULL DEFAULT 'running',
	final_stage  TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS node_executions (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES workflow_executions(id),
	node        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	metadata    TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	lead           TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_node    TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lead_states_stage ON lead_states(stage);
CREATE INDEX IF NOT EXISTS idx_lead_states_score ON lead_states(score DESC);
CREATE INDEX IF NOT EXISTS idx_lead_states_industry ON lead_states(industry);
CREATE INDEX IF NOT EXISTS idx_workflow_executions_lead_id ON workflow_executions(lead_id);
CREATE INDEX IF NOT EXISTS idx_node_executions_run_id ON node_executions(run_id);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveLead(ctx context.Context, lead *model.Lead) error {
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
		return eris.Wrap(err, "sqlite: marshal lead")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_states (id, company_name, industry, location, stage, score, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   company_name = excluded.company_name, industry = excluded.industry,
		   location = excluded.location, stage = excluded.stage,
		   score = excluded.score, state = excluded.state, updated_at = excluded.updated_at`,
		lead.ID, lead.CompanyName, lead.Industry, lead.Location,
		string(lead.Stage), lead.Score, string(stateJSON), lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save lead %s", lead.ID)
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state FROM lead_states WHERE id = ?`, leadID,
	)
	var stateJSON string
	err := row.Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrLeadNotFound, "sqlite: get lead %s", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	return unmarshalLead(stateJSON)
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, leadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lead_states WHERE id = ?`, leadID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lead %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) ListLeadsByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM lead_states WHERE stage = ? ORDER BY updated_at DESC LIMIT ?`,
		string(stage), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads by stage")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) ListHighScoreLeads(ctx context.Context, minScore float64, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM lead_states WHERE score >= ? ORDER BY score DESC LIMIT ?`,
		minScore, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list high score leads")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) SearchLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	filter = normalizeFilter(filter)

	query := `SELECT state FROM lead_states WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.CompanyName != "" {
		query += ` AND LOWER(company_name) LIKE ?`
		args = append(args, "%"+strings.ToLower(filter.CompanyName)+"%")
	}
	if filter.Location != "" {
		query += ` AND LOWER(location) LIKE ?`
		args = append(args, "%"+strings.ToLower(filter.Location)+"%")
	}
	if filter.MinScore != nil {
		query += ` AND score >= ?`
		args = append(args, *filter.MinScore)
	}
	if filter.MaxScore != nil {
		query += ` AND score <= ?`
		args = append(args, *filter.MaxScore)
	}

	dir := "DESC"
	if filter.Ascending {
		dir = "ASC"
	}
	query += ` ORDER BY ` + filter.SortBy + ` ` + dir
	query += ` LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search leads")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{ByStage: make(map[model.Stage]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), COALESCE(AVG(score), 0) FROM lead_states GROUP BY stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by stage")
	}
	defer rows.Close()

	var weightedScore float64
	for rows.Next() {
		var stage string
		var count int
		var avg float64
		if err := rows.Scan(&stage, &count, &avg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage stats")
		}
		stats.ByStage[model.Stage(stage)] = count
		stats.TotalLeads += count
		weightedScore += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats iterate")
	}
	if stats.TotalLeads > 0 {
		stats.AvgScore = weightedScore / float64(stats.TotalLeads)
	}
	stats.HandedOff = stats.ByStage[model.StageSalesHandoff]

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) FROM workflow_executions`,
	).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats runs")
	}

	depth, err := s.CountDLQ(ctx)
	if err != nil {
		return nil, err
	}
	stats.DLQDepth = depth

	return stats, nil
}

func (s *SQLiteStore) CreateWorkflowRun(ctx context.Context, leadID string) (*model.WorkflowRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, lead_id, status, started_at) VALUES (?, ?, ?, ?)`,
		id, leadID, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for lead %s", leadID)
	}

	return &model.WorkflowRun{
		ID:        id,
		LeadID:    leadID,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteWorkflowRun(ctx context.Context, runID string, status model.RunStatus, finalStage model.Stage, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = ?, final_stage = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), string(finalStage), nullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetWorkflowRun(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lead_id, status, final_stage, error, started_at, completed_at
		 FROM workflow_executions WHERE id = ?`, runID,
	)

	var r model.WorkflowRun
	var finalStage, runErr sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.LeadID, &r.Status, &finalStage, &runErr, &r.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if finalStage.Valid {
		r.FinalStage = model.Stage(finalStage.String)
	}
	if runErr.Valid {
		r.Error = runErr.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) ListWorkflowRuns(ctx context.Context, leadID string) ([]model.WorkflowRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, status, final_stage, error, started_at, completed_at
		 FROM workflow_executions WHERE lead_id = ? ORDER BY started_at DESC`, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list runs for lead %s", leadID)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		var r model.WorkflowRun
		var finalStage, runErr sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.LeadID, &r.Status, &finalStage, &runErr, &r.StartedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if finalStage.Valid {
			r.FinalStage = model.Stage(finalStage.String)
		}
		if runErr.Valid {
			r.Error = runErr.String
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RecordNodeExecution(ctx context.Context, exec model.NodeExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	var metaJSON any
	if exec.Metadata != nil {
		data, err := json.Marshal(exec.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal node metadata")
		}
		metaJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_executions (id, run_id, node, status, duration_ms, error, metadata, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RunID, exec.Node, string(exec.Status),
		exec.DurationMS, nullIfEmpty(exec.Error), metaJSON, exec.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: record node execution %s", exec.Node)
}

func (s *SQLiteStore) ListNodeExecutions(ctx context.Context, runID string) ([]model.NodeExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node, status, duration_ms, error, metadata, started_at
		 FROM node_executions WHERE run_id = ? ORDER BY started_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list node executions")
	}
	defer rows.Close()

	var execs []model.NodeExecution
	for rows.Next() {
		var e model.NodeExecution
		var execErr, metaJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Node, &e.Status, &e.DurationMS, &execErr, &metaJSON, &e.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan node execution")
		}
		if execErr.Valid {
			e.Error = execErr.String
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal node metadata")
			}
		}
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "sqlite: list node executions iterate")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	leadJSON, err := json.Marshal(entry.Lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq lead")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, lead, error, error_type, failed_node, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   failed_node = excluded.failed_node, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(leadJSON), entry.Error, entry.ErrorType,
		entry.FailedNode, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, lead, error, error_type, failed_node, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue WHERE 1=1`
	var args []any

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	if filter.Node != "" {
		query += ` AND failed_node = ?`
		args = append(args, filter.Node)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var leadJSON string
		var failedNode sql.NullString
		if err := rows.Scan(&e.ID, &leadJSON, &e.Error, &e.ErrorType,
			&failedNode, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if failedNode.Valid {
			e.FailedNode = failedNode.String
		}
		if err := json.Unmarshal([]byte(leadJSON), &e.Lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq lead")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func unmarshalLead(stateJSON string) (*model.Lead, error) {
	var l model.Lead
	if err := json.Unmarshal([]byte(stateJSON), &l); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lead")
	}
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l, err := unmarshalLead(stateJSON)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: leads iterate")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
