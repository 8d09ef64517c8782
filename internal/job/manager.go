// Package job owns pipeline job records: starting, cancelling and querying
// jobs, enforcing at most one active job per plan, and hosting each
// pipeline run as an independently cancellable goroutine.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowus/planpress/internal/event"
	"github.com/glowus/planpress/internal/pipeline"
	"github.com/glowus/planpress/models"
	"github.com/glowus/planpress/store"
)

// ExecutorFactory builds a fresh executor set for one pipeline run.
// Executors share per-run artifacts (extracted facts, section mappings), so
// sets are never reused across jobs.
type ExecutorFactory func(plan *models.Plan) pipeline.ExecutorSet

// Manager owns job records and their pipeline goroutines.
type Manager struct {
	store    store.Store
	bus      *event.Broadcaster
	registry *pipeline.Registry
	factory  ExecutorFactory

	mu     sync.RWMutex
	active map[string]*activeJob // job id -> live run
	byPlan map[string]string     // plan id -> active job id
}

// activeJob tracks one running pipeline: its cancel function and the latest
// consistent snapshot published by the pipeline goroutine.
type activeJob struct {
	cancel   context.CancelFunc
	mu       sync.RWMutex
	snapshot *models.Job
}

func (a *activeJob) update(j *models.Job) {
	clone := j.Clone()
	a.mu.Lock()
	a.snapshot = clone
	a.mu.Unlock()
}

func (a *activeJob) get() *models.Job {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// NewManager creates a job manager.
func NewManager(st store.Store, bus *event.Broadcaster, registry *pipeline.Registry, factory ExecutorFactory) *Manager {
	return &Manager{
		store:    st,
		bus:      bus,
		registry: registry,
		factory:  factory,
		active:   make(map[string]*activeJob),
		byPlan:   make(map[string]string),
	}
}

// Recover fails any job the previous process left active. Call once on boot
// before accepting work.
func (m *Manager) Recover() error {
	n, err := m.store.RecoverInterrupted()
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("recovered interrupted jobs", "count", n)
	}
	return nil
}

// Start creates a job for the plan and launches the pipeline in its own
// goroutine, returning the job handle immediately. It fails with a
// ConflictError when the plan already has an active job.
func (m *Manager) Start(planID string) (*models.Job, error) {
	plan, err := m.store.GetPlan(planID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if jobID, ok := m.byPlan[planID]; ok {
		m.mu.Unlock()
		return nil, &models.ConflictError{PlanID: planID, JobID: jobID}
	}
	m.mu.Unlock()

	now := time.Now()
	j := &models.Job{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Status:    models.JobPending,
		CreatedAt: now,
	}

	runner := pipeline.NewRunner(m.registry, &jobSink{manager: m, job: j})
	runner.InitStageRuns(j)

	// The store enforces the invariant a second time, closing the race
	// between two concurrent Start calls for the same plan.
	if err := m.store.CreateJob(j); err != nil {
		return nil, err
	}

	started := time.Now()
	j.Status = models.JobRunning
	j.StartedAt = &started
	if err := m.store.SaveJob(j); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &activeJob{cancel: cancel}
	run.update(j)

	m.mu.Lock()
	m.active[j.ID] = run
	m.byPlan[planID] = j.ID
	m.mu.Unlock()

	m.bus.Publish(j.ID, event.Event{
		Type:     event.TypeSnapshot,
		JobID:    j.ID,
		Status:   string(j.Status),
		Progress: j.Progress,
		Job:      j.Clone(),
	})

	go m.runPipeline(ctx, runner, plan, j, run)

	return j.Clone(), nil
}

func (m *Manager) runPipeline(ctx context.Context, runner *pipeline.Runner, plan *models.Plan, j *models.Job, run *activeJob) {
	defer func() {
		m.mu.Lock()
		delete(m.active, j.ID)
		if m.byPlan[j.PlanID] == j.ID {
			delete(m.byPlan, j.PlanID)
		}
		m.mu.Unlock()
		m.bus.Close(j.ID)
	}()

	slog.Info("pipeline started", "job", j.ID, "plan", j.PlanID)
	runner.Run(ctx, plan, j, m.factory(plan))
	slog.Info("pipeline finished", "job", j.ID, "plan", j.PlanID, "status", j.Status, "error", j.Error)
}

// Cancel raises the cooperative cancellation signal for a running job. The
// pipeline observes it at its next checkpoint; in-flight external calls are
// never interrupted.
func (m *Manager) Cancel(jobID string) error {
	m.mu.RLock()
	run, ok := m.active[jobID]
	m.mu.RUnlock()
	if ok {
		run.cancel()
		return nil
	}

	j, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}
	return &models.InvalidStateError{Op: "cancel job", State: string(j.Status)}
}

// Get returns the current job snapshot, safe to call while the pipeline is
// running.
func (m *Manager) Get(jobID string) (*models.Job, error) {
	m.mu.RLock()
	run, ok := m.active[jobID]
	m.mu.RUnlock()
	if ok {
		if snap := run.get(); snap != nil {
			return snap, nil
		}
	}
	return m.store.GetJob(jobID)
}

// ActiveForPlan returns the id of the plan's active job, if any.
func (m *Manager) ActiveForPlan(planID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlan[planID]
	return id, ok
}

// Subscribe attaches a progress observer to a job. For live jobs the stream
// starts with a snapshot and follows with deltas; for terminal jobs it
// replays the snapshot plus the terminal event and closes.
func (m *Manager) Subscribe(jobID string) (<-chan event.Event, func(), error) {
	m.mu.RLock()
	_, live := m.active[jobID]
	m.mu.RUnlock()

	if live {
		ch, cancel := m.bus.Subscribe(jobID)
		return ch, cancel, nil
	}

	j, err := m.store.GetJob(jobID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan event.Event, 2)
	ch <- event.Event{
		Type:     event.TypeSnapshot,
		JobID:    j.ID,
		Status:   string(j.Status),
		Progress: j.Progress,
		Job:      j,
	}
	if t := event.TerminalType(j.Status); t != "" {
		ch <- event.Event{Type: t, JobID: j.ID, Progress: j.Progress, Error: j.Error}
	}
	close(ch)
	return ch, func() {}, nil
}

// jobSink receives every job and stage run transition from the pipeline
// goroutine. Events are published to the broadcaster before control returns
// to the runner, so observers never silently miss a transition. Partial
// progress lives in the in-memory snapshot; the store is written on stage
// and job status changes only.
type jobSink struct {
	manager *Manager
	job     *models.Job
}

func (s *jobSink) run() *activeJob {
	s.manager.mu.RLock()
	defer s.manager.mu.RUnlock()
	return s.manager.active[s.job.ID]
}

func (s *jobSink) OnStageRun(run *models.StageRun) {
	if a := s.run(); a != nil {
		a.update(s.job)
	}
	if run.Status.Terminal() || run.Status == models.StageProcessing && run.Progress == 0 {
		if err := s.manager.store.SaveJob(s.job); err != nil {
			slog.Error("persist stage run", "job", s.job.ID, "stage", run.Stage, "error", err)
		}
	}
	s.manager.bus.Publish(s.job.ID, event.Event{
		Type:     event.TypeStageProgress,
		JobID:    s.job.ID,
		Stage:    run.Stage,
		Status:   string(run.Status),
		Progress: run.Progress,
		Message:  run.Message,
		Error:    run.Error,
	})
}

func (s *jobSink) OnJob(j *models.Job) {
	if a := s.run(); a != nil {
		a.update(j)
	}
	if j.Status != models.JobRunning {
		if err := s.manager.store.SaveJob(j); err != nil {
			slog.Error("persist job", "job", j.ID, "error", err)
		}
	}
	ev := event.Event{
		Type:     event.TypeJobProgress,
		JobID:    j.ID,
		Status:   string(j.Status),
		Progress: j.Progress,
		Job:      j.Clone(),
	}
	if t := event.TerminalType(j.Status); t != "" {
		ev.Type = t
		ev.Error = j.Error
	}
	s.manager.bus.Publish(j.ID, ev)
}

func (s *jobSink) OnQuestions(planID string, drafts []pipeline.QuestionDraft) {
	questions := make([]models.Question, 0, len(drafts))
	now := time.Now()
	for _, d := range drafts {
		questions = append(questions, models.Question{
			ID:          uuid.NewString(),
			PlanID:      planID,
			SectionKey:  d.SectionKey,
			Text:        d.Text,
			Context:     d.Context,
			Priority:    d.Priority,
			Status:      models.QuestionPending,
			ContentHash: d.ContentHash,
			CreatedAt:   now,
		})
	}
	created, err := s.manager.store.CreateQuestions(planID, questions)
	if err != nil {
		slog.Error("persist questions", "plan", planID, "error", err)
		return
	}
	if created > 0 {
		slog.Info("questions created", "plan", planID, "created", created, "scanned", len(drafts))
	}
}

func (s *jobSink) OnPlan(plan *models.Plan) {
	if err := s.manager.store.SavePlan(plan); err != nil {
		slog.Error("persist plan", "plan", plan.ID, "error", err)
	}
}
