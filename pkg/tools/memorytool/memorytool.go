// Package memorytool implements the built-in "memory" tool: an agent
// can record, recall, and manage long-term or workflow-scoped notes.
// Grounded in structure on sibling local-tool packages (a
// small Args struct, invopop/jsonschema for Schema()), wired to
// pkg/vector + pkg/embedders for the similarity search and pkg/store
// for the structured record (type, scope, priority, tags, relations)
// neither of those two care about.
package memorytool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/embedders"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/tool"
	"github.com/kestrelrun/conductor/pkg/vector"
)

const (
	maxContentLength  = 50000
	defaultThreshold  = 0.7
	defaultListLimit  = 10
	maxOperationLimit = 100
)

var validMemoryTypes = map[string]bool{
	string(store.MemoryUserPref):  true,
	string(store.MemoryContext):   true,
	string(store.MemoryKnowledge): true,
	string(store.MemoryDecision):  true,
}

// Args is the unified argument shape for every memory action; which
// fields are read depends on Action.
type Args struct {
	Action string `json:"action" jsonschema:"required,enum=activate_workflow,enum=activate_general,enum=add,enum=get,enum=list,enum=search,enum=delete,enum=clear_by_type,description=Memory operation to perform"`

	WorkflowID string         `json:"workflow_id,omitempty" jsonschema:"description=Workflow id to activate for activate_workflow"`
	MemoryID   string         `json:"memory_id,omitempty" jsonschema:"description=Target memory id for get/delete"`
	Type       string         `json:"type,omitempty" jsonschema:"enum=user_pref,enum=context,enum=knowledge,enum=decision,description=Memory type for add/list/search/clear_by_type"`
	Content    string         `json:"content,omitempty" jsonschema:"description=Content to remember, for add"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"description=Free-form metadata for add; a priority key in [0,1] sets the record's priority"`
	Tags       []string       `json:"tags,omitempty" jsonschema:"description=Tags to attach, for add"`
	Query      string         `json:"query,omitempty" jsonschema:"description=Search text, for search"`
	Limit      int            `json:"limit,omitempty" jsonschema:"description=Maximum records to return (<=100),default=10"`
	Threshold  float64        `json:"threshold,omitempty" jsonschema:"description=Minimum similarity for search,default=0.7"`
	Scope      string         `json:"scope,omitempty" jsonschema:"enum=workflow,enum=general,enum=both,description=Which memories to consider for list/search"`
}

// Tool is the memory tool. Every action is scoped to the calling
// agent's own memories (store/provider calls key on ctx.AgentID()).
type Tool struct {
	provider vector.Provider
	embedder embedders.EmbedderProvider
	store    *store.Store
	schema   map[string]any

	mu          sync.Mutex
	activeScope map[string]string // caller workflow id -> activated workflow id ("" = general)
}

func New(provider vector.Provider, embedder embedders.EmbedderProvider, st *store.Store) *Tool {
	return &Tool{
		provider:    provider,
		embedder:    embedder,
		store:       st,
		schema:      tool.SchemaOf[Args](),
		activeScope: make(map[string]string),
	}
}

func (t *Tool) Name() string           { return "memory" }
func (t *Tool) Description() string    { return "Record, recall, and manage long-term or workflow-scoped memories." }
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "medium" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, rawArgs map[string]any) (map[string]any, error) {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	c := context.Background()

	switch args.Action {
	case "activate_workflow":
		wfID := args.WorkflowID
		if wfID == "" {
			wfID = ctx.WorkflowID()
		}
		t.setActiveScope(ctx.WorkflowID(), wfID)
		return map[string]any{"active_scope": "workflow", "workflow_id": wfID}, nil

	case "activate_general":
		t.setActiveScope(ctx.WorkflowID(), "")
		return map[string]any{"active_scope": "general"}, nil

	case "add":
		return t.add(c, ctx, args)

	case "get":
		if args.MemoryID == "" {
			return nil, apperrors.Validation("memory_id is required")
		}
		m, err := t.store.GetMemory(c, args.MemoryID)
		if err != nil {
			return nil, err
		}
		return memoryToMap(m, 0), nil

	case "list":
		return t.list(c, ctx, args)

	case "search":
		return t.search(c, ctx, args)

	case "delete":
		if args.MemoryID == "" {
			return nil, apperrors.Validation("memory_id is required")
		}
		if err := t.provider.Delete(c, ctx.AgentID(), args.MemoryID); err != nil {
			return nil, err
		}
		if err := t.store.DeleteMemory(c, args.MemoryID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true}, nil

	case "clear_by_type":
		if args.Type == "" {
			return nil, apperrors.Validation("type is required")
		}
		if err := t.provider.DeleteByFilter(c, ctx.AgentID(), map[string]any{"type": args.Type}); err != nil {
			return nil, err
		}
		if err := t.store.ClearMemoriesByType(c, ctx.AgentID(), store.MemoryType(args.Type)); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true}, nil

	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown memory action %q", args.Action))
	}
}

func (t *Tool) add(c context.Context, ctx tool.Context, args *Args) (map[string]any, error) {
	if args.Content == "" {
		return nil, apperrors.Validation("content is required")
	}
	if len(args.Content) > maxContentLength {
		return nil, apperrors.Validation("content exceeds maximum length of 50000")
	}
	if args.Type == "" || !validMemoryTypes[args.Type] {
		return nil, apperrors.Validation("type must be one of user_pref, context, knowledge, decision")
	}

	embedding, err := t.embedder.Embed(args.Content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "embed memory content", err)
	}

	id := uuid.NewString()
	priority := 0.5
	if v, ok := args.Metadata["priority"].(float64); ok {
		priority = clamp01(v)
	}

	if err := t.provider.Upsert(c, ctx.AgentID(), id, embedding, map[string]any{
		"content": args.Content,
		"type":    args.Type,
	}); err != nil {
		return nil, err
	}

	workflowID := t.scopedWorkflowID(ctx.WorkflowID())
	m := &store.Memory{
		ID:         id,
		AgentID:    ctx.AgentID(),
		WorkflowID: workflowID,
		Type:       store.MemoryType(args.Type),
		Content:    args.Content,
		Metadata:   args.Metadata,
		Priority:   priority,
		Tags:       args.Tags,
		Relations:  []string{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := t.store.CreateMemory(c, m); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "stored": true}, nil
}

func (t *Tool) list(c context.Context, ctx tool.Context, args *Args) (map[string]any, error) {
	filter := store.MemoryFilter{
		AgentID:    ctx.AgentID(),
		WorkflowID: t.resolveWorkflowScope(ctx, args.Scope),
		Scope:      t.resolveScope(ctx, args.Scope),
		Type:       store.MemoryType(args.Type),
		Limit:      boundLimit(args.Limit),
	}
	ms, err := t.store.ListMemories(c, filter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, memoryToMap(m, 0))
	}
	return map[string]any{"memories": out}, nil
}

func (t *Tool) search(c context.Context, ctx tool.Context, args *Args) (map[string]any, error) {
	if args.Query == "" {
		return nil, apperrors.Validation("query is required")
	}
	threshold := args.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	limit := boundLimit(args.Limit)

	embedding, err := t.embedder.Embed(args.Query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "embed search query", err)
	}
	hits, err := t.provider.Search(c, ctx.AgentID(), embedding, maxOperationLimit)
	if err != nil {
		return nil, err
	}

	scoreByID := make(map[string]float32, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		scoreByID[h.ID] = h.Score
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return map[string]any{"matches": []any{}}, nil
	}

	filter := store.MemoryFilter{
		AgentID:    ctx.AgentID(),
		WorkflowID: t.resolveWorkflowScope(ctx, args.Scope),
		Scope:      t.resolveScope(ctx, args.Scope),
		Type:       store.MemoryType(args.Type),
		IDs:        ids,
		Limit:      maxOperationLimit,
	}
	ms, err := t.store.ListMemories(c, filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(ms, func(i, j int) bool { return scoreByID[ms[i].ID] > scoreByID[ms[j].ID] })
	if len(ms) > limit {
		ms = ms[:limit]
	}

	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, memoryToMap(m, scoreByID[m.ID]))
	}
	return map[string]any{"matches": out}, nil
}

// resolveScope returns the effective scope keyword: an explicit
// per-call scope wins, otherwise the workflow's activate_workflow /
// activate_general state, defaulting to "general" if neither ever ran.
func (t *Tool) resolveScope(ctx tool.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if t.scopedWorkflowID(ctx.WorkflowID()) != "" {
		return "workflow"
	}
	return "general"
}

func (t *Tool) resolveWorkflowScope(ctx tool.Context, explicitScope string) string {
	if explicitScope == "workflow" || explicitScope == "" {
		if wf := t.scopedWorkflowID(ctx.WorkflowID()); wf != "" {
			return wf
		}
	}
	return ctx.WorkflowID()
}

func (t *Tool) setActiveScope(callerWorkflowID, activatedWorkflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeScope[callerWorkflowID] = activatedWorkflowID
}

func (t *Tool) scopedWorkflowID(callerWorkflowID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeScope[callerWorkflowID]
}

func memoryToMap(m *store.Memory, score float32) map[string]any {
	out := map[string]any{
		"id":         m.ID,
		"type":       string(m.Type),
		"content":    m.Content,
		"metadata":   m.Metadata,
		"priority":   m.Priority,
		"tags":       m.Tags,
		"relations":  m.Relations,
		"created_at": m.CreatedAt,
	}
	if m.WorkflowID != "" {
		out["workflow_id"] = m.WorkflowID
	}
	if score > 0 {
		out["score"] = score
	}
	return out
}

func boundLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxOperationLimit {
		return maxOperationLimit
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseArgs(raw map[string]any) (*Args, error) {
	args := &Args{}
	if v, ok := raw["action"].(string); ok {
		args.Action = v
	}
	if v, ok := raw["workflow_id"].(string); ok {
		args.WorkflowID = v
	}
	if v, ok := raw["memory_id"].(string); ok {
		args.MemoryID = v
	}
	if v, ok := raw["type"].(string); ok {
		args.Type = v
	}
	if v, ok := raw["content"].(string); ok {
		args.Content = v
	}
	if v, ok := raw["metadata"].(map[string]any); ok {
		args.Metadata = v
	}
	if v, ok := raw["query"].(string); ok {
		args.Query = v
	}
	if v, ok := raw["scope"].(string); ok {
		args.Scope = v
	}
	if v, ok := raw["limit"].(float64); ok {
		args.Limit = int(v)
	}
	if v, ok := raw["threshold"].(float64); ok {
		args.Threshold = v
	}
	if v, ok := raw["tags"].([]any); ok {
		for _, e := range v {
			if s, ok := e.(string); ok {
				args.Tags = append(args.Tags, s)
			}
		}
	}
	if args.Action == "" {
		return nil, apperrors.Validation("action is required")
	}
	return args, nil
}

var _ tool.CallableTool = (*Tool)(nil)
