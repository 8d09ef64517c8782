// Package app provides the plan lifecycle operations. This is THE
// implementation; the CLI and the HTTP server both call these methods.
package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glowus/planpress/internal/job"
	"github.com/glowus/planpress/internal/pipeline"
	"github.com/glowus/planpress/internal/template"
	"github.com/glowus/planpress/models"
	"github.com/glowus/planpress/store"
)

// App bundles the collaborators of the plan service.
type App struct {
	Store     store.Store
	Templates *template.Library
	Jobs      *job.Manager
}

// New creates the application service.
func New(st store.Store, templates *template.Library, jobs *job.Manager) *App {
	return &App{Store: st, Templates: templates, Jobs: jobs}
}

// CreatePlanOptions configures plan creation.
type CreatePlanOptions struct {
	Title       string
	TemplateKey string
	Brief       string
}

// CreatePlan creates an empty plan from a template.
func (a *App) CreatePlan(opts CreatePlanOptions) (*models.Plan, error) {
	if opts.TemplateKey == "" {
		opts.TemplateKey = template.DefaultKey()
	}
	tmpl, err := a.Templates.Get(opts.TemplateKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	plan := &models.Plan{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		TemplateKey: tmpl.Key,
		Brief:       opts.Brief,
		Sections:    tmpl.NewSections(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := models.ValidateStruct(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if err := a.Store.CreatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPlan returns a plan with its sections.
func (a *App) GetPlan(id string) (*models.Plan, error) {
	return a.Store.GetPlan(id)
}

// ListPlans returns all plans, newest first.
func (a *App) ListPlans() ([]models.Plan, error) {
	return a.Store.ListPlans()
}

// DeletePlan removes a plan unless a job is active for it.
func (a *App) DeletePlan(id string) error {
	return a.Store.DeletePlan(id)
}

// EditSection applies a human edit to one section. The edit is rejected
// with a conflict while a pipeline job is running for the plan, and the
// section is re-validated against its constraints.
func (a *App) EditSection(planID, key, content string) (*models.Section, error) {
	plan, err := a.Store.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	sec := plan.SectionByKey(key)
	if sec == nil {
		return nil, models.NewNotFound("section", key)
	}

	sec.Content = content
	sec.Provenance = models.ProvenanceHuman
	sec.UpdatedAt = time.Now()
	pipeline.Apply(sec)

	if err := a.Store.UpdateSection(planID, *sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// StartPipeline launches the generation pipeline for a plan.
func (a *App) StartPipeline(planID string) (*models.Job, error) {
	return a.Jobs.Start(planID)
}

// CancelPipeline requests cooperative cancellation of a job. The job must
// belong to the given plan.
func (a *App) CancelPipeline(planID, jobID string) error {
	j, err := a.Jobs.Get(jobID)
	if err != nil {
		return err
	}
	if j.PlanID != planID {
		return models.NewNotFound("job", jobID)
	}
	return a.Jobs.Cancel(jobID)
}

// GetJob returns the current job snapshot.
func (a *App) GetJob(jobID string) (*models.Job, error) {
	return a.Jobs.Get(jobID)
}

// ListQuestions returns a plan's questions, most urgent first.
func (a *App) ListQuestions(planID string) ([]models.Question, error) {
	if _, err := a.Store.GetPlan(planID); err != nil {
		return nil, err
	}
	return a.Store.ListQuestions(planID)
}

// AnswerQuestion records an answer and, when the owning section still
// contains the placeholder, substitutes the answer into the section content
// for the next pipeline run. Answering never restarts the pipeline.
func (a *App) AnswerQuestion(questionID, answer string) (*models.Question, error) {
	q, err := a.Store.AnswerQuestion(questionID, answer)
	if err != nil {
		return nil, err
	}

	if q.SectionKey != "" {
		if err := a.resolvePlaceholder(q, answer); err != nil {
			// The answer is recorded either way; substitution can be
			// retried by editing the section.
			return q, err
		}
	}
	return q, nil
}

// resolvePlaceholder replaces the answered placeholder in the owning
// section, subject to the usual edit conflict rules.
func (a *App) resolvePlaceholder(q *models.Question, answer string) error {
	plan, err := a.Store.GetPlan(q.PlanID)
	if err != nil {
		return err
	}
	sec := plan.SectionByKey(q.SectionKey)
	if sec == nil {
		return nil
	}

	for _, ph := range sec.Placeholders {
		if ph.Hash != q.ContentHash {
			continue
		}
		sec.Content = pipeline.ReplaceMarker(sec.Content, ph.Text, answer)
		sec.UpdatedAt = time.Now()
		pipeline.Apply(sec)
		return a.Store.UpdateSection(q.PlanID, *sec)
	}
	return nil
}
