package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/glowus/planpress/models"
)

// StageSink observes every stage run mutation. The pipeline does not proceed
// until the sink returns, so observers never miss a transition; sink
// implementations must therefore be fast and non-blocking.
type StageSink interface {
	OnStageRun(run *models.StageRun)
}

// StageRunner executes one stage for one plan by invoking the supplied
// executor, keeping the stage run's progress monotonic and honoring
// cooperative cancellation between partial callbacks.
type StageRunner struct {
	sink StageSink
}

// NewStageRunner creates a stage runner reporting into sink.
func NewStageRunner(sink StageSink) *StageRunner {
	return &StageRunner{sink: sink}
}

// Run transitions the stage run to processing, drives the executor and
// finalizes the run. On success the produced sections are merged into the
// plan and re-validated; on failure or cancellation no partial output is
// flushed (all-or-nothing per stage).
func (r *StageRunner) Run(ctx context.Context, stage Stage, plan *models.Plan, run *models.StageRun, exec Executor) (*Result, error) {
	start := time.Now()
	run.Status = models.StageProcessing
	run.Progress = 0
	run.Message = "starting " + stage.Name
	run.StartedAt = &start
	r.sink.OnStageRun(run)

	if err := ctx.Err(); err != nil {
		return nil, r.fail(run, start, ErrCancelled.Error(), &StageExecutionError{Stage: stage.Ordinal, Err: ErrCancelled})
	}

	cancelled := false
	partial := func(progress int, message string) {
		if cancelled || ctx.Err() != nil {
			// Cancellation observed between callbacks: stop reporting,
			// the executor's eventual result is discarded below.
			cancelled = true
			return
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 99 {
			progress = 99
		}
		if progress < run.Progress {
			// Progress within a stage run is monotonically non-decreasing.
			progress = run.Progress
		}
		run.Progress = progress
		if message != "" {
			run.Message = message
		}
		r.sink.OnStageRun(run)
	}

	result, err := exec.Execute(ctx, plan, partial)

	if cancelled || ctx.Err() != nil {
		return nil, r.fail(run, start, ErrCancelled.Error(), &StageExecutionError{Stage: stage.Ordinal, Err: ErrCancelled})
	}
	if err != nil {
		if err == ErrNotApplicable {
			return nil, err
		}
		slog.Warn("stage executor failed", "stage", stage.Ordinal, "key", stage.Key, "error", err)
		return nil, r.fail(run, start, err.Error(), &StageExecutionError{Stage: stage.Ordinal, Err: err})
	}

	if result != nil {
		for _, sec := range result.Sections {
			if sec.Provenance == "" {
				sec.Provenance = models.ProvenanceAI
			}
			sec.UpdatedAt = time.Now()
			Apply(&sec)
			plan.MergeSection(sec)
		}
		if result.Document != "" {
			plan.Document = result.Document
		}
		plan.Usage = plan.Usage.Add(result.Usage)
		run.Usage = result.Usage
	}

	end := time.Now()
	run.Status = models.StageCompleted
	run.Progress = 100
	run.Message = stage.Name + " completed"
	run.FinishedAt = &end
	run.DurationMS = end.Sub(start).Milliseconds()
	r.sink.OnStageRun(run)
	return result, nil
}

// fail finalizes the run as failed with the given error text and returns
// wrapped.
func (r *StageRunner) fail(run *models.StageRun, start time.Time, msg string, wrapped error) error {
	end := time.Now()
	run.Status = models.StageFailed
	run.Error = msg
	run.FinishedAt = &end
	run.DurationMS = end.Sub(start).Milliseconds()
	r.sink.OnStageRun(run)
	return wrapped
}
