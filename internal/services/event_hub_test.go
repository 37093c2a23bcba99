package services

import (
	"testing"
	"time"
)

func TestEventHubDeliversToSubscribers(t *testing.T) {
	hub := NewEventHub()

	subID, events := hub.Subscribe("job-1")
	defer hub.Unsubscribe("job-1", subID)

	hub.Publish(ProgressEvent{Type: EventProgress, JobID: "job-1", Progress: 40})

	select {
	case ev := <-events:
		if ev.Progress != 40 {
			t.Errorf("Progress = %d, want 40", ev.Progress)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventHubScopesByJob(t *testing.T) {
	hub := NewEventHub()

	subID, events := hub.Subscribe("job-1")
	defer hub.Unsubscribe("job-1", subID)

	hub.Publish(ProgressEvent{Type: EventProgress, JobID: "job-2", Progress: 10})

	select {
	case ev := <-events:
		t.Errorf("received another job's event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewEventHub()

	subID, events := hub.Subscribe("job-1")
	hub.Unsubscribe("job-1", subID)

	if _, open := <-events; open {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after the last unsubscribe must not panic.
	hub.Publish(ProgressEvent{Type: EventProgress, JobID: "job-1"})
}

func TestEventHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewEventHub()

	subID, events := hub.Subscribe("job-1")
	defer hub.Unsubscribe("job-1", subID)

	// Nobody reads; overfill the buffer. Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBufferSize*3; i++ {
			hub.Publish(ProgressEvent{Type: EventProgress, JobID: "job-1", Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := len(events); got != eventBufferSize {
		t.Errorf("buffered %d events, want %d", got, eventBufferSize)
	}
}

func TestEventHubMultipleSubscribers(t *testing.T) {
	hub := NewEventHub()

	subA, eventsA := hub.Subscribe("job-1")
	subB, eventsB := hub.Subscribe("job-1")
	defer hub.Unsubscribe("job-1", subA)
	defer hub.Unsubscribe("job-1", subB)

	hub.Publish(ProgressEvent{Type: EventComplete, JobID: "job-1"})

	for name, ch := range map[string]<-chan ProgressEvent{"a": eventsA, "b": eventsB} {
		select {
		case ev := <-ch:
			if ev.Type != EventComplete {
				t.Errorf("subscriber %s got %q, want complete", name, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}
