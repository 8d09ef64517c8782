package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glowus/planpress/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite for persistence.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writes; modernc/sqlite allows one writer
}

// NewSQLiteStore opens (or creates) the database at basePath/planpress.db.
// Pass ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		dbPath = filepath.Join(basePath, "planpress.db")
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The in-memory database lives per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		template_key TEXT NOT NULL,
		brief TEXT NOT NULL DEFAULT '',
		document TEXT NOT NULL DEFAULT '',
		completion INTEGER NOT NULL DEFAULT 0,
		current_stage INTEGER NOT NULL DEFAULT 0,
		usage_tokens INTEGER NOT NULL DEFAULT 0,
		usage_cost REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sections (
		plan_id TEXT NOT NULL,
		key TEXT NOT NULL,
		title TEXT NOT NULL,
		ord INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		char_count INTEGER NOT NULL DEFAULT 0,
		max_char_limit INTEGER NOT NULL DEFAULT 0,
		required_subsections TEXT,          -- JSON array of strings
		importance INTEGER NOT NULL DEFAULT 0,
		validation_status TEXT NOT NULL DEFAULT 'valid',
		validation_messages TEXT,           -- JSON array
		placeholders TEXT,                  -- JSON array
		provenance TEXT NOT NULL DEFAULT 'ai',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (plan_id, key),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		section_key TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		answer TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		answered_at TEXT,
		UNIQUE (plan_id, content_hash),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		current_stage INTEGER NOT NULL DEFAULT 0,
		stage_runs TEXT,                    -- JSON map ordinal -> stage run
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sections_plan ON sections(plan_id, ord);
	CREATE INDEX IF NOT EXISTS idx_questions_plan ON questions(plan_id, priority);
	CREATE INDEX IF NOT EXISTS idx_jobs_plan ON jobs(plan_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func tsFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func tsParse(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func tsNullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return tsFormat(*t)
}

func tsParseNullable(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := tsParse(v.String)
	return &t
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// CreatePlan persists a new plan and its sections.
func (s *SQLiteStore) CreatePlan(plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO plans (id, title, template_key, brief, document, completion, current_stage, usage_tokens, usage_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Title, plan.TemplateKey, plan.Brief, plan.Document,
		plan.Completion, plan.CurrentStage, plan.Usage.Tokens, plan.Usage.CostUSD,
		tsFormat(plan.CreatedAt), tsFormat(plan.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}

	for i := range plan.Sections {
		if err := upsertSection(tx, plan.ID, &plan.Sections[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertSection(tx *sql.Tx, planID string, sec *models.Section) error {
	_, err := tx.Exec(`INSERT INTO sections (plan_id, key, title, ord, content, char_count, max_char_limit, required_subsections, importance, validation_status, validation_messages, placeholders, provenance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (plan_id, key) DO UPDATE SET
			title = excluded.title,
			ord = excluded.ord,
			content = excluded.content,
			char_count = excluded.char_count,
			max_char_limit = excluded.max_char_limit,
			required_subsections = excluded.required_subsections,
			importance = excluded.importance,
			validation_status = excluded.validation_status,
			validation_messages = excluded.validation_messages,
			placeholders = excluded.placeholders,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at`,
		planID, sec.Key, sec.Title, sec.Order, sec.Content, sec.CharCount,
		sec.MaxCharLimit, marshalJSON(sec.RequiredSubsections), sec.Importance,
		string(sec.ValidationStatus), marshalJSON(sec.ValidationMessages),
		marshalJSON(sec.Placeholders), string(sec.Provenance), tsFormat(sec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert section %s: %w", sec.Key, err)
	}
	return nil
}

func scanPlanRow(row interface{ Scan(...any) error }) (*models.Plan, error) {
	var p models.Plan
	var created, updated string
	err := row.Scan(&p.ID, &p.Title, &p.TemplateKey, &p.Brief, &p.Document,
		&p.Completion, &p.CurrentStage, &p.Usage.Tokens, &p.Usage.CostUSD,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = tsParse(created)
	p.UpdatedAt = tsParse(updated)
	return &p, nil
}

const planColumns = `id, title, template_key, brief, document, completion, current_stage, usage_tokens, usage_cost, created_at, updated_at`

// GetPlan retrieves a plan with its sections.
func (s *SQLiteStore) GetPlan(id string) (*models.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("plan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	rows, err := s.db.Query(`SELECT key, title, ord, content, char_count, max_char_limit, required_subsections, importance, validation_status, validation_messages, placeholders, provenance, updated_at
		FROM sections WHERE plan_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sec models.Section
		var subs, msgs, phs sql.NullString
		var status, prov, updated string
		if err := rows.Scan(&sec.Key, &sec.Title, &sec.Order, &sec.Content,
			&sec.CharCount, &sec.MaxCharLimit, &subs, &sec.Importance,
			&status, &msgs, &phs, &prov, &updated); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.ValidationStatus = models.ValidationStatus(status)
		sec.Provenance = models.Provenance(prov)
		sec.UpdatedAt = tsParse(updated)
		if subs.Valid {
			_ = json.Unmarshal([]byte(subs.String), &sec.RequiredSubsections)
		}
		if msgs.Valid {
			_ = json.Unmarshal([]byte(msgs.String), &sec.ValidationMessages)
		}
		if phs.Valid {
			_ = json.Unmarshal([]byte(phs.String), &sec.Placeholders)
		}
		p.Sections = append(p.Sections, sec)
	}
	return p, rows.Err()
}

// ListPlans returns all plans without sections, newest first.
func (s *SQLiteStore) ListPlans() ([]models.Plan, error) {
	rows, err := s.db.Query(`SELECT ` + planColumns + ` FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Plan
	for rows.Next() {
		p, err := scanPlanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SavePlan updates the plan row and upserts all sections.
func (s *SQLiteStore) SavePlan(plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE plans SET title = ?, brief = ?, document = ?, completion = ?, current_stage = ?, usage_tokens = ?, usage_cost = ?, updated_at = ? WHERE id = ?`,
		plan.Title, plan.Brief, plan.Document, plan.Completion, plan.CurrentStage,
		plan.Usage.Tokens, plan.Usage.CostUSD, tsFormat(time.Now()), plan.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFound("plan", plan.ID)
	}

	for i := range plan.Sections {
		if err := upsertSection(tx, plan.ID, &plan.Sections[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeletePlan removes a plan and everything attached to it.
func (s *SQLiteStore) DeletePlan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, err := s.activeJobLocked(id); err != nil {
		return err
	} else if job != nil {
		return &models.ConflictError{PlanID: id, JobID: job.ID}
	}

	res, err := s.db.Exec(`DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFound("plan", id)
	}
	return nil
}

// UpdateSection applies an external edit to one section, rejecting the edit
// while a job is active for the plan.
func (s *SQLiteStore) UpdateSection(planID string, sec models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, err := s.activeJobLocked(planID); err != nil {
		return err
	} else if job != nil {
		return &models.ConflictError{PlanID: planID, JobID: job.ID}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(1) FROM sections WHERE plan_id = ? AND key = ?`, planID, sec.Key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check section: %w", err)
	}
	if exists == 0 {
		return models.NewNotFound("section", sec.Key)
	}
	if err := upsertSection(tx, planID, &sec); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE plans SET updated_at = ? WHERE id = ?`, tsFormat(time.Now()), planID); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return tx.Commit()
}

// CreateQuestions inserts questions, skipping content hashes the plan has
// already seen. Returns the number created.
func (s *SQLiteStore) CreateQuestions(planID string, questions []models.Question) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := 0
	for _, q := range questions {
		res, err := tx.Exec(`INSERT INTO questions (id, plan_id, section_key, text, context, priority, status, answer, content_hash, created_at, answered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (plan_id, content_hash) DO NOTHING`,
			q.ID, planID, q.SectionKey, q.Text, q.Context, q.Priority,
			string(q.Status), q.Answer, q.ContentHash, tsFormat(q.CreatedAt),
			tsNullable(q.AnsweredAt))
		if err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

const questionColumns = `id, plan_id, section_key, text, context, priority, status, answer, content_hash, created_at, answered_at`

func scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	var q models.Question
	var status, created string
	var answered sql.NullString
	err := row.Scan(&q.ID, &q.PlanID, &q.SectionKey, &q.Text, &q.Context,
		&q.Priority, &status, &q.Answer, &q.ContentHash, &created, &answered)
	if err != nil {
		return nil, err
	}
	q.Status = models.QuestionStatus(status)
	q.CreatedAt = tsParse(created)
	q.AnsweredAt = tsParseNullable(answered)
	return &q, nil
}

// ListQuestions returns a plan's questions, most urgent first.
func (s *SQLiteStore) ListQuestions(planID string) ([]models.Question, error) {
	rows, err := s.db.Query(`SELECT `+questionColumns+` FROM questions WHERE plan_id = ? ORDER BY priority, created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// GetQuestion retrieves a question by id.
func (s *SQLiteStore) GetQuestion(id string) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("question", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// AnswerQuestion records the answer and marks the question answered.
func (s *SQLiteStore) AnswerQuestion(id, answer string) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.GetQuestion(id)
	if err != nil {
		return nil, err
	}
	if q.Status == models.QuestionAnswered {
		return nil, &models.InvalidStateError{Op: "answer question", State: string(q.Status)}
	}
	now := time.Now()
	_, err = s.db.Exec(`UPDATE questions SET status = ?, answer = ?, answered_at = ? WHERE id = ?`,
		string(models.QuestionAnswered), answer, tsFormat(now), id)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	q.Status = models.QuestionAnswered
	q.Answer = answer
	q.AnsweredAt = &now
	return q, nil
}

const jobColumns = `id, plan_id, status, progress, current_stage, stage_runs, error, created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var j models.Job
	var status, created string
	var runs, started, finished sql.NullString
	err := row.Scan(&j.ID, &j.PlanID, &status, &j.Progress, &j.CurrentStage,
		&runs, &j.Error, &created, &started, &finished)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.CreatedAt = tsParse(created)
	j.StartedAt = tsParseNullable(started)
	j.FinishedAt = tsParseNullable(finished)
	j.StageRuns = make(map[int]*models.StageRun)
	if runs.Valid && runs.String != "" {
		_ = json.Unmarshal([]byte(runs.String), &j.StageRuns)
	}
	return &j, nil
}

// CreateJob persists a new job, enforcing at most one active job per plan.
func (s *SQLiteStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.activeJobLocked(job.PlanID)
	if err != nil {
		return err
	}
	if active != nil {
		return &models.ConflictError{PlanID: job.PlanID, JobID: active.ID}
	}

	_, err = s.db.Exec(`INSERT INTO jobs (id, plan_id, status, progress, current_stage, stage_runs, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PlanID, string(job.Status), job.Progress, job.CurrentStage,
		marshalJSON(job.StageRuns), job.Error, tsFormat(job.CreatedAt),
		tsNullable(job.StartedAt), tsNullable(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// SaveJob updates a job's mutable fields.
func (s *SQLiteStore) SaveJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE jobs SET status = ?, progress = ?, current_stage = ?, stage_runs = ?, error = ?, started_at = ?, finished_at = ? WHERE id = ?`,
		string(job.Status), job.Progress, job.CurrentStage,
		marshalJSON(job.StageRuns), job.Error,
		tsNullable(job.StartedAt), tsNullable(job.FinishedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFound("job", job.ID)
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *SQLiteStore) GetJob(id string) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) activeJobLocked(planID string) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE plan_id = ? AND status IN ('pending', 'running') LIMIT 1`, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job: %w", err)
	}
	return j, nil
}

// ActiveJob returns the plan's pending or running job, or nil.
func (s *SQLiteStore) ActiveJob(planID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeJobLocked(planID)
}

// ListJobs returns all jobs for a plan, newest first.
func (s *SQLiteStore) ListJobs(planID string) ([]models.Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs WHERE plan_id = ? ORDER BY created_at DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// RecoverInterrupted fails every job the previous process left pending or
// running.
func (s *SQLiteStore) RecoverInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE jobs SET status = 'failed', error = 'interrupted by restart', finished_at = ? WHERE status IN ('pending', 'running')`,
		tsFormat(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("recover jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
