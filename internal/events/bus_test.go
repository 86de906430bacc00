package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestBusSince(t *testing.T) {
	bus := NewBus(3, log.New(io.Discard))
	ctx := context.Background()
	bus.JobChanged(ctx, "j", "pending", "")
	bus.JobChanged(ctx, "j", "processing", "")
	bus.JobChanged(ctx, "j", "generating_script", "")

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Status != "generating_script" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestBusCapsHistory(t *testing.T) {
	bus := NewBus(2, log.New(io.Discard))
	for _, s := range []string{"1", "2", "3"} {
		bus.Publish(context.Background(), Event{Message: s})
	}
	events := bus.Since(0)
	if len(events) != 2 || events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

func TestNATSForwarderSubjects(t *testing.T) {
	conn := &fakeConn{}
	bus := NewBus(10, log.New(io.Discard), &NATSForwarder{conn: conn})
	bus.JobChanged(context.Background(), "job1", "completed", "")

	if len(conn.subjects) != 1 || conn.subjects[0] != "podcast.jobs.completed" {
		t.Fatalf("subjects = %v", conn.subjects)
	}
	var e Event
	if err := json.Unmarshal(conn.payloads[0], &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.JobID != "job1" || e.Seq != 1 {
		t.Fatalf("event = %+v", e)
	}
}

func TestForwardFailureDoesNotDropEvent(t *testing.T) {
	bus := NewBus(10, log.New(io.Discard), &NATSForwarder{conn: &fakeConn{err: errors.New("down")}})
	bus.JobChanged(context.Background(), "job1", "failed", "boom")
	if got := bus.Since(0); len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("events = %+v", got)
	}
}
