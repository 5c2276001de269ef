// Package userquestiontool implements the built-in "ask_user" tool: an
// agent can pause and ask the operator a free-form question, blocking
// until an answer arrives over the command surface. Modeled on the
// same wait-for-external-decision shape as pkg/validation.Gate, scoped
// to arbitrary Q&A instead of tool-call approval.
package userquestiontool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/tool"
)

type Args struct {
	Question string `json:"question" jsonschema:"required,description=Question to ask the user"`
}

// Broker tracks outstanding questions and wakes up the waiting call
// once Answer is delivered from the command surface.
type Broker struct {
	bus *stream.Bus

	mu      sync.Mutex
	waiters map[string]chan string
}

func NewBroker(bus *stream.Bus) *Broker {
	return &Broker{bus: bus, waiters: make(map[string]chan string)}
}

func (b *Broker) Ask(ctx context.Context, workflowID, question string) (string, error) {
	id := uuid.NewString()
	ch := make(chan string, 1)
	b.mu.Lock()
	b.waiters[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	b.bus.Publish(workflowID, stream.EventValidationWait, map[string]any{
		"question_id": id, "question": question,
	})

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		return "", apperrors.Cancelled("question " + id + " cancelled before an answer arrived")
	}
}

// Answer delivers an operator's answer to a pending question.
func (b *Broker) Answer(questionID, answer string) error {
	b.mu.Lock()
	ch, ok := b.waiters[questionID]
	b.mu.Unlock()
	if !ok {
		return apperrors.NotFound("question " + questionID)
	}
	ch <- answer
	return nil
}

type Tool struct {
	broker *Broker
	schema map[string]any
}

func New(broker *Broker) *Tool {
	return &Tool{broker: broker, schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string          { return "ask_user" }
func (t *Tool) Description() string   { return "Ask the operator a question and wait for their answer before continuing." }
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "low" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, raw map[string]any) (map[string]any, error) {
	question, _ := raw["question"].(string)
	if question == "" {
		return nil, apperrors.Validation("question is required")
	}
	callCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	answer, err := t.broker.Ask(callCtx, ctx.WorkflowID(), question)
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": answer}, nil
}

var _ tool.CallableTool = (*Tool)(nil)
