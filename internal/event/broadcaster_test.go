package event

import (
	"testing"

	"github.com/glowus/planpress/models"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe("j1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("j1")
	defer cancel2()

	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1", Progress: 25})

	for i, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		if ev.Type != TypeJobProgress || ev.Progress != 25 {
			t.Errorf("subscriber %d got %+v", i, ev)
		}
	}
}

func TestBroadcaster_PerJobIsolation(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("j2")
	defer cancel()

	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1", Progress: 10})

	select {
	case ev := <-ch:
		t.Fatalf("subscriber to j2 received event for another job: %+v", ev)
	default:
	}
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("j1")
	defer cancel()

	// Nobody drains the channel, so everything beyond the queue bound is
	// dropped rather than blocking the publisher.
	sent := DefaultQueueSize + 10
	for i := 0; i < sent; i++ {
		b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1", Progress: i})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != DefaultQueueSize {
				t.Fatalf("received %d events, want %d", received, DefaultQueueSize)
			}
			return
		}
	}
}

func TestBroadcaster_SnapshotReplayForLateSubscriber(t *testing.T) {
	b := NewBroadcaster()
	job := &models.Job{ID: "j1", Status: models.JobRunning, Progress: 40}
	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1", Progress: 40, Job: job})

	ch, cancel := b.Subscribe("j1")
	defer cancel()

	ev := <-ch
	if ev.Type != TypeSnapshot {
		t.Fatalf("first event = %s, want snapshot", ev.Type)
	}
	if ev.Progress != 40 || ev.Job == nil || ev.Job.ID != "j1" {
		t.Errorf("snapshot event = %+v", ev)
	}
}

func TestBroadcaster_CloseEndsStream(t *testing.T) {
	b := NewBroadcaster()
	job := &models.Job{ID: "j1", Status: models.JobCompleted, Progress: 100}
	ch, cancel := b.Subscribe("j1")
	defer cancel()

	b.Publish("j1", Event{Type: TypeJobCompleted, JobID: "j1", Progress: 100, Job: job})
	b.Close("j1")

	ev, ok := <-ch
	if !ok || ev.Type != TypeJobCompleted {
		t.Fatalf("terminal event = %+v ok=%v", ev, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel must be closed after Close")
	}

	// Publishing after Close is a no-op.
	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1"})
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster()
	job := &models.Job{ID: "j1", Status: models.JobFailed, Progress: 60}
	b.Publish("j1", Event{Type: TypeJobFailed, JobID: "j1", Progress: 60, Job: job})
	b.Close("j1")

	ch, cancel := b.Subscribe("j1")
	defer cancel()

	ev, ok := <-ch
	if !ok || ev.Type != TypeSnapshot {
		t.Fatalf("late subscriber event = %+v ok=%v", ev, ok)
	}
	if ev.Job == nil || ev.Job.Status != models.JobFailed {
		t.Errorf("snapshot job = %+v", ev.Job)
	}
	if _, ok := <-ch; ok {
		t.Error("stream after a closed topic must end immediately")
	}
}

func TestBroadcaster_CancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("j1")
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel must be closed after cancel")
	}

	// Publish to a topic with no remaining subscribers must not panic.
	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1"})
}

func TestBroadcaster_Forget(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("j1")
	defer cancel()
	b.Publish("j1", Event{Type: TypeJobProgress, JobID: "j1", Job: &models.Job{ID: "j1"}})
	b.Forget("j1")

	// Drain the delivered event, then expect closure.
	for range ch {
	}

	if chLate, cancelLate := b.Subscribe("j1"); chLate != nil {
		defer cancelLate()
		select {
		case ev := <-chLate:
			t.Fatalf("forgotten topic replayed state: %+v", ev)
		default:
		}
	}
}

func TestTerminalType(t *testing.T) {
	cases := []struct {
		status models.JobStatus
		want   string
	}{
		{models.JobCompleted, TypeJobCompleted},
		{models.JobFailed, TypeJobFailed},
		{models.JobCancelled, TypeJobCancelled},
		{models.JobRunning, ""},
	}
	for _, tc := range cases {
		if got := TerminalType(tc.status); got != tc.want {
			t.Errorf("TerminalType(%s) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
