// Package stream is the typed, ordered event fabric the command
// surface's "execute_workflow_streaming" reads from. It generalizes a
// typed, SSE-shaped event schema to the full set of workflow lifecycle
// events this runtime emits.
package stream

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventThinking       EventType = "thinking"
	EventMessage        EventType = "message"
	EventToolCallStart  EventType = "tool_call_start"
	EventToolCallResult EventType = "tool_call_result"
	EventValidationWait EventType = "validation_wait"
	EventSubAgentStart  EventType = "sub_agent_start"
	EventSubAgentDone   EventType = "sub_agent_done"
	EventSubAgentError  EventType = "sub_agent_error"
	EventStatusChange   EventType = "status_change"
	EventError          EventType = "error"
	EventDone           EventType = "done"
)

// Event is one ordered increment of workflow progress. Seq is
// monotonic per workflow, starting at 1; Drain discards the counter.
// The bus keeps no event history, so a subscriber only sees events
// published after it subscribed.
type Event struct {
	Type       EventType
	WorkflowID string
	Seq        uint64
	Payload    any
	Timestamp  time.Time
}

// Bus fans out events for a workflow to every currently-subscribed
// reader. Each subscriber has a bounded buffer; once it is full,
// Publish blocks until the subscriber catches up.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
	seq  map[string]uint64
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[chan Event]struct{}),
		seq:  make(map[string]uint64),
	}
}

const subscriberBuffer = 64

// Subscribe registers a new reader for workflowID. The returned
// unsubscribe func must be called (typically via defer) once the
// reader is done; ctx cancellation alone does not remove the channel
// from the fan-out set.
func (b *Bus) Subscribe(workflowID string) (ch <-chan Event, unsubscribe func()) {
	c := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[workflowID] == nil {
		b.subs[workflowID] = make(map[chan Event]struct{})
	}
	b.subs[workflowID][c] = struct{}{}
	b.mu.Unlock()

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[workflowID][c]; !ok {
			return // already closed by Drain
		}
		delete(b.subs[workflowID], c)
		if len(b.subs[workflowID]) == 0 {
			delete(b.subs, workflowID)
		}
		close(c)
	}
}

// Publish assigns the next sequence number for workflowID and
// delivers the event to every current subscriber, blocking while a
// subscriber's buffer is full so a lagging reader applies backpressure
// to the workflow rather than silently losing events. Only one reader
// is expected per workflow in steady state (the background manager),
// so this cannot wedge on an unrelated subscriber.
func (b *Bus) Publish(workflowID string, evtType EventType, payload any) Event {
	b.mu.Lock()
	b.seq[workflowID]++
	seq := b.seq[workflowID]
	subs := make([]chan Event, 0, len(b.subs[workflowID]))
	for c := range b.subs[workflowID] {
		subs = append(subs, c)
	}
	b.mu.Unlock()

	evt := Event{Type: evtType, WorkflowID: workflowID, Seq: seq, Payload: payload, Timestamp: time.Now()}
	for _, c := range subs {
		c <- evt
	}
	return evt
}

// Drain closes out all subscribers for a workflow once it reaches a
// terminal state, after publishing a final EventDone.
func (b *Bus) Drain(workflowID string) {
	b.Publish(workflowID, EventDone, nil)
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs[workflowID] {
		close(c)
	}
	delete(b.subs, workflowID)
	delete(b.seq, workflowID)
}

// WaitDone blocks until ctx is done or the workflow is drained,
// whichever comes first — used by synchronous command handlers
// ("execute") that want to await completion without streaming.
func WaitDone(ctx context.Context, ch <-chan Event) (Event, bool) {
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return Event{}, false
			}
			if evt.Type == EventDone || evt.Type == EventError {
				return evt, true
			}
		case <-ctx.Done():
			return Event{}, false
		}
	}
}
