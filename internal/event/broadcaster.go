// Package event implements the progress broadcaster: a per-job pub/sub hub
// with bounded subscriber queues and non-blocking publish, so a slow or
// absent observer can never stall the pipeline.
package event

import (
	"log/slog"
	"sync"

	"github.com/glowus/planpress/models"
)

// Event types on the progress stream.
const (
	TypeSnapshot      = "snapshot"
	TypeStageProgress = "stage_progress"
	TypeJobProgress   = "job_progress"
	TypeJobCompleted  = "job_completed"
	TypeJobFailed     = "job_failed"
	TypeJobCancelled  = "job_cancelled"
)

// Event is one progress delta on a job's stream.
type Event struct {
	Type     string             `json:"type"`
	JobID    string             `json:"job_id"`
	Stage    int                `json:"stage,omitempty"`
	Status   string             `json:"status,omitempty"`
	Progress int                `json:"progress"`
	Message  string             `json:"message,omitempty"`
	Error    string             `json:"error,omitempty"`
	Job      *models.Job        `json:"job,omitempty"`
}

// TerminalType maps a terminal job status to its stream event type.
func TerminalType(status models.JobStatus) string {
	switch status {
	case models.JobCompleted:
		return TypeJobCompleted
	case models.JobFailed:
		return TypeJobFailed
	case models.JobCancelled:
		return TypeJobCancelled
	}
	return ""
}

// DefaultQueueSize bounds each subscriber's delivery queue. When a queue is
// full further events for that subscriber are dropped, never buffered
// without bound and never allowed to block the publisher.
const DefaultQueueSize = 64

type subscriber struct {
	ch      chan Event
	dropped int
}

type topic struct {
	subs     map[*subscriber]struct{}
	snapshot *models.Job
	closed   bool
}

// Broadcaster fans job progress events out to any number of subscribers.
// Late subscribers receive a snapshot of current job state before deltas.
type Broadcaster struct {
	mu        sync.Mutex
	topics    map[string]*topic
	queueSize int
}

// NewBroadcaster creates a broadcaster with the default per-subscriber
// queue size.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		topics:    make(map[string]*topic),
		queueSize: DefaultQueueSize,
	}
}

func (b *Broadcaster) topicLocked(jobID string) *topic {
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		b.topics[jobID] = t
	}
	return t
}

// Publish delivers ev to every subscriber of the job, updating the replay
// snapshot when the event carries one. Publish never blocks: events for a
// subscriber with a full queue are dropped.
func (b *Broadcaster) Publish(jobID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(jobID)
	if t.closed {
		return
	}
	if ev.Job != nil {
		t.snapshot = ev.Job
	}
	for s := range t.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				slog.Warn("dropping progress events for slow subscriber", "job", jobID, "dropped", s.dropped)
			}
		}
	}
}

// Subscribe attaches an observer to the job's stream. The returned channel
// is primed with a snapshot event when one is known, then receives deltas
// until Close or cancel. The cancel function is safe to call more than once
// and never blocks pipeline execution.
func (b *Broadcaster) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(jobID)
	s := &subscriber{ch: make(chan Event, b.queueSize)}

	if t.snapshot != nil {
		s.ch <- Event{
			Type:     TypeSnapshot,
			JobID:    jobID,
			Status:   string(t.snapshot.Status),
			Progress: t.snapshot.Progress,
			Job:      t.snapshot,
		}
	}
	if t.closed {
		close(s.ch)
		return s.ch, func() {}
	}

	t.subs[s] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := t.subs[s]; ok {
				delete(t.subs, s)
				close(s.ch)
			}
		})
	}
	return s.ch, cancel
}

// Close ends a job's stream after its terminal event has been published;
// all subscriber channels are closed and late subscribers only get the
// final snapshot.
func (b *Broadcaster) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok || t.closed {
		return
	}
	t.closed = true
	for s := range t.subs {
		delete(t.subs, s)
		close(s.ch)
	}
}

// Forget drops all broadcaster state for a job. Used when the owning plan is
// deleted.
func (b *Broadcaster) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[jobID]; ok && !t.closed {
		for s := range t.subs {
			delete(t.subs, s)
			close(s.ch)
		}
	}
	delete(b.topics, jobID)
}
