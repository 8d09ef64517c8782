package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/glowus/planpress/models"
)

// ErrNotApplicable is returned by an executor when the stage has nothing to
// do for this plan (e.g. the question scan finds no placeholders). The stage
// run is recorded as skipped and the pipeline continues.
var ErrNotApplicable = errors.New("stage not applicable")

// ErrCancelled is the cooperative cancellation signal observed at stage
// checkpoints. It never interrupts an in-flight external call.
var ErrCancelled = errors.New("cancelled")

// StageExecutionError wraps a failure raised by a stage executor and carries
// the stage ordinal so terminal job state can reproduce the failure context.
type StageExecutionError struct {
	Stage int
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %d: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// PartialFunc reports intermediate executor progress. Progress is clamped to
// [0, 99] by the stage runner; values below the last reported progress are
// ignored to keep the run monotonic.
type PartialFunc func(progress int, message string)

// QuestionDraft is an unanswered-fact question produced by the question scan
// stage, not yet persisted. ContentHash deduplicates drafts across runs.
type QuestionDraft struct {
	SectionKey  string
	Text        string
	Context     string
	Priority    int
	ContentHash string
}

// Result is the final output of one stage executor invocation. Sections are
// merged into the plan all-or-nothing on success; questions are persisted by
// the caller.
type Result struct {
	Sections  []models.Section
	Questions []QuestionDraft
	Document  string
	Usage     models.Usage
}

// Executor performs the actual content work of one stage. Implementations
// may parallelize internally but must deliver partial callbacks sequentially.
type Executor interface {
	Execute(ctx context.Context, plan *models.Plan, partial PartialFunc) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, plan *models.Plan, partial PartialFunc) (*Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, plan *models.Plan, partial PartialFunc) (*Result, error) {
	return f(ctx, plan, partial)
}

// ExecutorSet supplies the executor for each stage ordinal of one pipeline
// run. Executors may share per-run state (facts extracted in one stage are
// consumed by later ones), so a fresh set is built per job.
type ExecutorSet interface {
	Executor(stage Stage) (Executor, error)
}
