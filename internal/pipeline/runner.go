package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/glowus/planpress/models"
)

// Sink observes every job and stage run transition of a pipeline run.
type Sink interface {
	StageSink
	// OnJob is called after every job-level mutation (progress, status).
	OnJob(job *models.Job)
	// OnQuestions delivers question drafts produced by the question scan.
	OnQuestions(planID string, drafts []QuestionDraft)
	// OnPlan is called when the pipeline flushes plan mutations (merged
	// sections, completion, document).
	OnPlan(plan *models.Plan)
}

// Runner drives the stage runner across all registry stages for one plan,
// enforcing ordering, the required/optional failure policy and overall
// progress accounting. Stages run strictly sequentially: each stage consumes
// its predecessor's artifacts, so no stage starts before the previous one
// reaches a terminal status.
type Runner struct {
	registry *Registry
	stages   *StageRunner
	sink     Sink
}

// NewRunner creates a pipeline runner.
func NewRunner(registry *Registry, sink Sink) *Runner {
	return &Runner{
		registry: registry,
		stages:   NewStageRunner(sink),
		sink:     sink,
	}
}

// Registry exposes the runner's stage registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// InitStageRuns resets the job's stage runs: every registry stage gets a
// fresh pending run. Pipeline invocations never resume partially; each run
// restarts from stage 1.
func (r *Runner) InitStageRuns(job *models.Job) {
	job.StageRuns = make(map[int]*models.StageRun, r.registry.Len())
	for _, s := range r.registry.Stages() {
		job.StageRuns[s.Ordinal] = &models.StageRun{
			Stage:  s.Ordinal,
			Status: models.StagePending,
		}
	}
}

// Run executes the full pipeline for plan under job. The context carries the
// cooperative cancellation signal; it is checked at the top of every stage
// and between partial-progress callbacks, never inside executor calls.
func (r *Runner) Run(ctx context.Context, plan *models.Plan, job *models.Job, execs ExecutorSet) {
	total := r.registry.Len()
	finished := 0

	for _, stage := range r.registry.Stages() {
		if ctx.Err() != nil {
			r.cancelJob(job, stage.Ordinal)
			return
		}

		run, ok := job.StageRuns[stage.Ordinal]
		if !ok {
			run = &models.StageRun{Stage: stage.Ordinal, Status: models.StagePending}
			job.StageRuns[stage.Ordinal] = run
		}
		job.CurrentStage = stage.Ordinal
		plan.CurrentStage = stage.Ordinal

		exec, err := execs.Executor(stage)
		if err != nil {
			r.failJob(job, &StageExecutionError{Stage: stage.Ordinal, Err: err}, run)
			return
		}

		jobProgress := func(stageProgress int) {
			job.Progress = (100*finished + stageProgress) / total
			r.sink.OnJob(job)
		}

		result, err := r.stages.Run(ctx, stage, plan, run, withJobProgress(exec, run, jobProgress))
		switch {
		case err == nil:
			if result != nil && len(result.Questions) > 0 {
				r.sink.OnQuestions(plan.ID, result.Questions)
			}
			r.sink.OnPlan(plan)
		case errors.Is(err, ErrCancelled):
			r.cancelJob(job, stage.Ordinal)
			return
		case errors.Is(err, ErrNotApplicable):
			r.skip(run, stage, "not applicable")
		case stage.Required:
			r.failJob(job, err, run)
			return
		default:
			// Optional stage failed: record for diagnostics and move on.
			slog.Info("optional stage skipped after failure", "stage", stage.Ordinal, "key", stage.Key, "error", err)
			r.skip(run, stage, run.Error)
		}

		finished++
		jobProgress(0)
	}

	plan.RecomputeCompletion()
	r.sink.OnPlan(plan)

	now := time.Now()
	job.Status = models.JobCompleted
	job.Progress = 100
	job.FinishedAt = &now
	r.sink.OnJob(job)
}

// withJobProgress wraps an executor so that stage partials also refresh the
// job-level progress fraction. The fraction reads the stage run's own
// progress after the stage runner has clamped it, so the job value inherits
// the run's monotonicity. Once cancellation is observed no further job
// events are published.
func withJobProgress(exec Executor, run *models.StageRun, jobProgress func(int)) Executor {
	return ExecutorFunc(func(ctx context.Context, plan *models.Plan, partial PartialFunc) (*Result, error) {
		return exec.Execute(ctx, plan, func(progress int, message string) {
			partial(progress, message)
			if ctx.Err() != nil {
				return
			}
			jobProgress(run.Progress)
		})
	})
}

// skip records a stage run as skipped, preserving any recorded error text.
func (r *Runner) skip(run *models.StageRun, stage Stage, reason string) {
	now := time.Now()
	run.Status = models.StageSkipped
	run.Message = stage.Name + " skipped: " + reason
	if run.StartedAt != nil {
		run.DurationMS = now.Sub(*run.StartedAt).Milliseconds()
	}
	run.FinishedAt = &now
	r.sink.OnStageRun(run)
}

// failJob finalizes the job after a required stage failure. Stages after the
// failed one keep their pending status.
func (r *Runner) failJob(job *models.Job, err error, run *models.StageRun) {
	now := time.Now()
	if run.Status != models.StageFailed {
		run.Status = models.StageFailed
		run.Error = err.Error()
		run.FinishedAt = &now
		r.sink.OnStageRun(run)
	}
	job.Status = models.JobFailed
	job.Error = err.Error()
	job.FinishedAt = &now
	r.sink.OnJob(job)
}

// cancelJob finalizes the job as cancelled. The current stage run, if it was
// still live, is failed with the cancellation error; unflushed partial output
// has already been discarded by the stage runner.
func (r *Runner) cancelJob(job *models.Job, stage int) {
	now := time.Now()
	if run, ok := job.StageRuns[stage]; ok && !run.Status.Terminal() {
		run.Status = models.StageFailed
		run.Error = ErrCancelled.Error()
		run.FinishedAt = &now
		r.sink.OnStageRun(run)
	}
	job.Status = models.JobCancelled
	job.Error = ErrCancelled.Error()
	job.FinishedAt = &now
	r.sink.OnJob(job)
}
