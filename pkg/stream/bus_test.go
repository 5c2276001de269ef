package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelrun/conductor/pkg/stream"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := stream.NewBus()
	ch, unsubscribe := bus.Subscribe("wf-1")
	defer unsubscribe()

	bus.Publish("wf-1", stream.EventThinking, "a")
	bus.Publish("wf-1", stream.EventMessage, "b")
	bus.Publish("wf-1", stream.EventToolCallStart, "c")

	var got []stream.EventType
	for i := 0; i < 3; i++ {
		select {
		case evt := <-ch:
			got = append(got, evt.Type)
			if evt.Seq != uint64(i+1) {
				t.Fatalf("event %d: want seq %d, got %d", i, i+1, evt.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	want := []stream.EventType{stream.EventThinking, stream.EventMessage, stream.EventToolCallStart}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("event %d: want %s, got %s", i, w, got[i])
		}
	}
}

func TestBus_UnrelatedWorkflowsDontCrossDeliver(t *testing.T) {
	bus := stream.NewBus()
	chA, unsubA := bus.Subscribe("wf-a")
	defer unsubA()
	chB, unsubB := bus.Subscribe("wf-b")
	defer unsubB()

	bus.Publish("wf-a", stream.EventMessage, "only for a")

	select {
	case evt := <-chA:
		if evt.WorkflowID != "wf-a" {
			t.Fatalf("want wf-a, got %s", evt.WorkflowID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wf-a event")
	}

	select {
	case evt := <-chB:
		t.Fatalf("wf-b subscriber should not have received an event, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_DrainClosesSubscriberAfterFinalEvent(t *testing.T) {
	bus := stream.NewBus()
	ch, unsubscribe := bus.Subscribe("wf-1")
	defer unsubscribe()

	bus.Publish("wf-1", stream.EventMessage, "hi")
	go bus.Drain("wf-1")

	var sawDone bool
	for evt := range ch {
		if evt.Type == stream.EventDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Fatal("expected to observe EventDone before channel close")
	}
}

func TestWaitDone_ReturnsOnTerminalEvent(t *testing.T) {
	bus := stream.NewBus()
	ch, unsubscribe := bus.Subscribe("wf-1")
	defer unsubscribe()

	go func() {
		bus.Publish("wf-1", stream.EventThinking, nil)
		bus.Publish("wf-1", stream.EventStatusChange, map[string]any{"status": "completed"})
		bus.Drain("wf-1")
	}()

	evt, ok := stream.WaitDone(context.Background(), ch)
	if !ok {
		t.Fatal("WaitDone returned ok=false")
	}
	if evt.Type != stream.EventDone {
		t.Fatalf("want EventDone, got %s", evt.Type)
	}
}

func TestWaitDone_ContextCancelled(t *testing.T) {
	bus := stream.NewBus()
	ch, unsubscribe := bus.Subscribe("wf-1")
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := stream.WaitDone(ctx, ch)
	if ok {
		t.Fatal("want ok=false for cancelled context")
	}
}
