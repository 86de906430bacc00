// Package events records job status changes and fans them out to
// subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Event is one persisted job status change.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Forwarder ships events to an external system.
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

// Bus keeps a bounded history of recent events and provides incremental
// reads.
type Bus struct {
	mu         sync.RWMutex
	nextSeq    int64
	maxEvents  int
	events     []Event
	forwarders []Forwarder
	logger     *log.Logger
}

func NewBus(maxEvents int, logger *log.Logger, forwarders ...Forwarder) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents:  maxEvents,
		events:     make([]Event, 0, maxEvents),
		forwarders: forwarders,
		logger:     logger.With("component", "events"),
	}
}

// Publish appends one event, assigning sequence and timestamp, then
// forwards it. Forwarding failures are logged only.
func (b *Bus) Publish(ctx context.Context, e Event) Event {
	b.mu.Lock()
	b.nextSeq++
	e.Seq = b.nextSeq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.events = append(b.events, e)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	b.mu.Unlock()

	for _, f := range b.forwarders {
		if err := f.Forward(ctx, e); err != nil {
			b.logger.Warn("forward event failed", "job", e.JobID, "status", e.Status, "error", err)
		}
	}
	return e
}

// JobChanged records a status change reported by the job store.
func (b *Bus) JobChanged(ctx context.Context, jobID, status, message string) {
	b.Publish(ctx, Event{JobID: jobID, Status: status, Message: message})
}

// Since returns events with a sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, e := range b.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}
