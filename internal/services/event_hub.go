package services

import (
	"sync"

	"github.com/convoscope/backend/internal/logger"
	"github.com/google/uuid"
)

// Progress event types.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// ProgressEvent is one update on a job's progress stream. For a single job
// percentages never decrease and the complete or error event is always
// last.
type ProgressEvent struct {
	Type      string   `json:"type"`
	JobID     string   `json:"job_id"`
	Progress  int      `json:"progress"`
	Step      string   `json:"message,omitempty"`
	Status    string   `json:"status"`
	ResultRef string   `json:"result_ref,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

const eventBufferSize = 16

// EventHub fans progress events out to per-job subscribers. Publishing
// never blocks: a subscriber that falls behind loses events, and status
// polling remains the source of truth. Subscribers only receive events
// emitted after they subscribed.
type EventHub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan ProgressEvent
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[string]chan ProgressEvent)}
}

// Subscribe registers for a job's events. The channel is closed on
// Unsubscribe.
func (h *EventHub) Subscribe(jobID string) (string, <-chan ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subID := uuid.New().String()
	ch := make(chan ProgressEvent, eventBufferSize)
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[string]chan ProgressEvent)
	}
	h.subs[jobID][subID] = ch
	return subID, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *EventHub) Unsubscribe(jobID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if chans, ok := h.subs[jobID]; ok {
		if ch, ok := chans[subID]; ok {
			delete(chans, subID)
			close(ch)
		}
		if len(chans) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Publish delivers an event to every subscriber of the job, dropping it
// for any subscriber whose buffer is full.
func (h *EventHub) Publish(event ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for subID, ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			logger.Debug("Dropped progress event for slow subscriber", map[string]interface{}{
				"job_id": event.JobID,
				"sub_id": subID,
			})
		}
	}
}
