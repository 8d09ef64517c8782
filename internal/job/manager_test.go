package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/glowus/planpress/internal/event"
	"github.com/glowus/planpress/internal/pipeline"
	"github.com/glowus/planpress/models"
	"github.com/glowus/planpress/store"
)

type testSet map[int]pipeline.Executor

func (s testSet) Executor(stage pipeline.Stage) (pipeline.Executor, error) {
	exec, ok := s[stage.Ordinal]
	if !ok {
		return nil, errors.New("no executor")
	}
	return exec, nil
}

func instant() pipeline.Executor {
	return pipeline.ExecutorFunc(func(ctx context.Context, p *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
		partial(50, "working")
		return &pipeline.Result{}, nil
	})
}

// gated blocks until release is closed, then succeeds.
func gated(started chan<- struct{}, release <-chan struct{}) pipeline.Executor {
	return pipeline.ExecutorFunc(func(ctx context.Context, p *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
		close(started)
		<-release
		return &pipeline.Result{}, nil
	})
}

func testRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	r, err := pipeline.NewRegistry([]pipeline.Stage{
		{Ordinal: 1, Key: "one", Name: "One", Required: true},
		{Ordinal: 2, Key: "two", Name: "Two", Required: true},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func testManager(t *testing.T, factory ExecutorFactory) (*Manager, store.Store, *models.Plan) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	plan := &models.Plan{
		ID:          uuid.NewString(),
		Title:       "Acme",
		TemplateKey: "business_plan_standard",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := st.CreatePlan(plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	m := NewManager(st, event.NewBroadcaster(), testRegistry(t), factory)
	return m, st, plan
}

// drain reads the stream until it closes, returning every event seen.
func drain(t *testing.T, ch <-chan event.Event) []event.Event {
	t.Helper()
	var out []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(out))
		}
	}
}

func terminalEvent(events []event.Event) *event.Event {
	for i := range events {
		switch events[i].Type {
		case event.TypeJobCompleted, event.TypeJobFailed, event.TypeJobCancelled:
			return &events[i]
		}
	}
	return nil
}

func TestManager_StartRunsToCompletion(t *testing.T) {
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		return testSet{1: instant(), 2: instant()}
	}
	m, st, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.Status != models.JobRunning {
		t.Errorf("returned job status = %s", j.Status)
	}

	ch, cancel, err := m.Subscribe(j.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	events := drain(t, ch)
	term := terminalEvent(events)
	if term == nil || term.Type != event.TypeJobCompleted {
		t.Fatalf("terminal event = %+v", term)
	}

	stored, err := st.GetJob(j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != models.JobCompleted || stored.Progress != 100 {
		t.Errorf("stored job = %s/%d", stored.Status, stored.Progress)
	}
	if _, active := m.ActiveForPlan(plan.ID); active {
		t.Error("plan still marked active after completion")
	}
}

func TestManager_StartConflictsWhileActive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		calls++
		if calls == 1 {
			return testSet{1: gated(started, release), 2: instant()}
		}
		return testSet{1: instant(), 2: instant()}
	}
	m, _, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	_, err = m.Start(plan.ID)
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) || conflict.JobID != j.ID {
		t.Fatalf("err = %v, want ConflictError for %s", err, j.ID)
	}

	close(release)
	ch, cancel, _ := m.Subscribe(j.ID)
	defer cancel()
	drain(t, ch)

	// A finished job no longer blocks a new run.
	second, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	ch, cancel, _ = m.Subscribe(second.ID)
	defer cancel()
	drain(t, ch)
}

func TestManager_StartUnknownPlan(t *testing.T) {
	m, _, _ := testManager(t, func(plan *models.Plan) pipeline.ExecutorSet { return testSet{} })
	_, err := m.Start("missing")
	var nf *models.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestManager_CancelStopsPipeline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		return testSet{1: gated(started, release), 2: instant()}
	}
	m, st, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	if err := m.Cancel(j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// The executor finishes its in-flight call; cancellation is observed at
	// the next checkpoint.
	close(release)

	ch, cancel, _ := m.Subscribe(j.ID)
	defer cancel()
	events := drain(t, ch)
	term := terminalEvent(events)
	if term == nil || term.Type != event.TypeJobCancelled {
		t.Fatalf("terminal event = %+v", term)
	}

	stored, _ := st.GetJob(j.ID)
	if stored.Status != models.JobCancelled {
		t.Errorf("stored job = %s", stored.Status)
	}

	err = m.Cancel(j.ID)
	var invalid *models.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Errorf("cancelling a terminal job: err = %v, want InvalidStateError", err)
	}
}

func TestManager_GetSnapshotWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		return testSet{1: gated(started, release), 2: instant()}
	}
	m, _, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	snap, err := m.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != models.JobRunning {
		t.Errorf("snapshot status = %s", snap.Status)
	}
	// Snapshots are clones; mutating one never touches manager state.
	snap.Status = models.JobFailed
	again, _ := m.Get(j.ID)
	if again.Status != models.JobRunning {
		t.Error("snapshot mutation leaked into manager state")
	}

	close(release)
	ch, cancel, _ := m.Subscribe(j.ID)
	defer cancel()
	drain(t, ch)
}

func TestManager_SubscribeTerminalJobReplays(t *testing.T) {
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		return testSet{1: instant(), 2: instant()}
	}
	m, _, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch, cancel, _ := m.Subscribe(j.ID)
	drain(t, ch)
	cancel()

	// Late subscriber after the goroutine exited: snapshot + terminal, then
	// closed.
	ch, cancel, err = m.Subscribe(j.ID)
	if err != nil {
		t.Fatalf("Subscribe terminal: %v", err)
	}
	defer cancel()
	events := drain(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %d, want snapshot + terminal", len(events))
	}
	if events[0].Type != event.TypeSnapshot || events[1].Type != event.TypeJobCompleted {
		t.Errorf("replay = %s, %s", events[0].Type, events[1].Type)
	}

	_, _, err = m.Subscribe("missing")
	var nf *models.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestManager_QuestionsPersisted(t *testing.T) {
	factory := func(plan *models.Plan) pipeline.ExecutorSet {
		return testSet{
			1: pipeline.ExecutorFunc(func(ctx context.Context, p *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
				return &pipeline.Result{Questions: []pipeline.QuestionDraft{
					{SectionKey: "executive_summary", Text: "What is the company name?", Priority: 1, ContentHash: "h1"},
				}}, nil
			}),
			2: instant(),
		}
	}
	m, st, plan := testManager(t, factory)

	j, err := m.Start(plan.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch, cancel, _ := m.Subscribe(j.ID)
	defer cancel()
	drain(t, ch)

	questions, err := st.ListQuestions(plan.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 1 || questions[0].ContentHash != "h1" {
		t.Errorf("questions = %+v", questions)
	}
}

func TestManager_Recover(t *testing.T) {
	m, st, plan := testManager(t, func(plan *models.Plan) pipeline.ExecutorSet { return testSet{} })

	orphan := &models.Job{ID: uuid.NewString(), PlanID: plan.ID, Status: models.JobRunning, CreatedAt: time.Now()}
	if err := st.CreateJob(orphan); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got, _ := st.GetJob(orphan.ID)
	if got.Status != models.JobFailed || got.Error != "interrupted by restart" {
		t.Errorf("recovered job = %+v", got)
	}
	// The plan is startable again after recovery.
	if _, active := m.ActiveForPlan(plan.ID); active {
		t.Error("recovered job still active")
	}
}
