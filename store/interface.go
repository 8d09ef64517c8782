package store

import "github.com/glowus/planpress/models"

// Store defines the persistence contract for plans, sections, questions and
// pipeline jobs. It decouples the pipeline core and the HTTP surface from
// the concrete SQLite implementation.
type Store interface {
	// CreatePlan persists a new plan together with its (usually empty)
	// sections.
	CreatePlan(plan *models.Plan) error

	// GetPlan retrieves a plan with its sections, ordered by section order.
	// It returns a NotFoundError when the plan does not exist.
	GetPlan(id string) (*models.Plan, error)

	// ListPlans returns all plans without their sections, newest first.
	ListPlans() ([]models.Plan, error)

	// SavePlan updates the plan row and upserts all of its sections. It is
	// called by the pipeline, which owns the plan while a job is active, so
	// it performs no conflict check.
	SavePlan(plan *models.Plan) error

	// DeletePlan removes a plan, its sections, questions and jobs. It
	// returns a ConflictError while a job is active for the plan.
	DeletePlan(id string) error

	// UpdateSection applies an external (human) edit to one section. It
	// returns a ConflictError while a job is active for the plan, so edits
	// never race the pipeline.
	UpdateSection(planID string, sec models.Section) error

	// CreateQuestions inserts the given questions, skipping any whose
	// (plan, content hash) pair already exists. It returns the number of
	// questions actually created.
	CreateQuestions(planID string, questions []models.Question) (int, error)

	// ListQuestions returns a plan's questions ordered by priority then
	// creation time.
	ListQuestions(planID string) ([]models.Question, error)

	// GetQuestion retrieves a question by id.
	GetQuestion(id string) (*models.Question, error)

	// AnswerQuestion records an answer and flips the question to answered.
	// It returns an InvalidStateError when the question was already
	// answered.
	AnswerQuestion(id, answer string) (*models.Question, error)

	// CreateJob persists a new job. It returns a ConflictError when the
	// plan already has a pending or running job.
	CreateJob(job *models.Job) error

	// SaveJob updates a job's status, progress and stage runs.
	SaveJob(job *models.Job) error

	// GetJob retrieves a job by id.
	GetJob(id string) (*models.Job, error)

	// ActiveJob returns the plan's pending or running job, or nil when the
	// plan has none.
	ActiveJob(planID string) (*models.Job, error)

	// ListJobs returns all jobs for a plan, newest first.
	ListJobs(planID string) ([]models.Job, error)

	// RecoverInterrupted marks every pending or running job as failed.
	// Called once on boot so a process restart cannot leave phantom active
	// jobs behind. It returns the number of jobs recovered.
	RecoverInterrupted() (int, error)

	// Close releases the underlying database handle.
	Close() error
}
