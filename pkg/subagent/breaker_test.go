package subagent

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("attempt %d: want Allow, breaker opened too early", i)
		}
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Fatalf("want Closed after 2 failures with threshold 3, got %s", b.State())
	}

	if !b.Allow() {
		t.Fatal("3rd attempt should still be allowed before it fails")
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("want Open after 3 consecutive failures, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("Allow should reject while Open and before resetTimeout elapses")
	}
}

func TestCircuitBreaker_HalfOpenThenCloses(t *testing.T) {
	b := NewCircuitBreaker(1, 20*time.Millisecond)

	b.Allow()
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("want Open, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("want Allow to return true once in HalfOpen after cooldown")
	}
	if b.State() != HalfOpen {
		t.Fatalf("want HalfOpen, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("HalfOpen should only allow one trial call")
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("want Closed after success in HalfOpen, got %s", b.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure() // Open

	time.Sleep(15 * time.Millisecond)
	b.Allow() // HalfOpen trial
	b.RecordFailure()

	if b.State() != Open {
		t.Fatalf("want Open again after HalfOpen trial fails, got %s", b.State())
	}
}
