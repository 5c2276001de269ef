package agent

import (
	"context"

	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/utils"
)

// buildHistory loads the persisted conversation for workflowID — the
// sqlite-backed store.Store is the source of truth, not an in-memory
// session map — and trims it to the agent's token budget using the
// same most-recent-first fitting strategy as utils.TokenCounter.
func (a *Agent) buildHistory(ctx context.Context, workflowID string) ([]*model.Message, error) {
	records, err := a.store.ListMessages(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	messages := make([]*model.Message, 0, len(records))
	for _, rec := range records {
		if rec.Role == "system" {
			// Persisted once for the record; resent to the model via
			// req.SystemInstruction instead of as a turn in history.
			continue
		}
		role := model.RoleUser
		if rec.Role == "agent" {
			role = model.RoleAgent
		}
		messages = append(messages, model.NewMessage(role, model.TextPart{Text: rec.Content}))
	}

	if a.counter == nil || a.cfg.TokenBudget <= 0 {
		return messages, nil
	}

	return a.fitWithinBudget(messages), nil
}

// fitWithinBudget drops the oldest messages until the remainder fits
// a.cfg.TokenBudget, keeping the most recent turns intact.
func (a *Agent) fitWithinBudget(messages []*model.Message) []*model.Message {
	asUtil := make([]utils.Message, len(messages))
	for i, m := range messages {
		role := "user"
		if m.Role == model.RoleAgent {
			role = "assistant"
		}
		asUtil[i] = utils.Message{Role: role, Content: m.Text()}
	}

	fitted := a.counter.FitWithinLimit(asUtil, a.cfg.TokenBudget)
	if len(fitted) == len(messages) {
		return messages
	}
	return messages[len(messages)-len(fitted):]
}
