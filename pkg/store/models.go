package store

import "time"

type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowWaiting   WorkflowStatus = "waiting_validation"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

type Workflow struct {
	ID                   string
	AgentID              string
	Status               WorkflowStatus
	Goal                 string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	CancelRequested      bool
	CurrentContextTokens int
	ModelID              string
	TotalTokensInput     int
	TotalTokensOutput    int
	TotalCostUSD         float64
	Error                string
}

type Message struct {
	ID         string
	WorkflowID string
	Role       string
	Content    string
	Seq        int
	CreatedAt  time.Time
}

type ToolExecutionStatus string

const (
	ToolExecPending   ToolExecutionStatus = "pending"
	ToolExecRunning   ToolExecutionStatus = "running"
	ToolExecSucceeded ToolExecutionStatus = "succeeded"
	ToolExecFailed    ToolExecutionStatus = "failed"
	ToolExecDenied    ToolExecutionStatus = "denied"
)

type ToolExecution struct {
	ID          string
	WorkflowID  string
	ToolName    string
	ToolCallID  string
	Arguments   string
	Result      string
	Status      ToolExecutionStatus
	RiskLevel   string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

type ThinkingStep struct {
	ID         string
	WorkflowID string
	Content    string
	Seq        int
	CreatedAt  time.Time
}

type SubAgentMode string

const (
	SubAgentSpawn    SubAgentMode = "spawn"
	SubAgentDelegate SubAgentMode = "delegate"
	SubAgentParallel SubAgentMode = "parallel"
)

type SubAgentExecution struct {
	ID               string
	ParentWorkflowID string
	ChildWorkflowID  string
	Mode             SubAgentMode
	Status           WorkflowStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	Error            string
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskBlocked   TaskStatus = "blocked"
)

type Task struct {
	ID         string
	WorkflowID string
	Title      string
	Status     TaskStatus
	DependsOn  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MemoryType classifies a Memory record.
type MemoryType string

const (
	MemoryUserPref  MemoryType = "user_pref"
	MemoryContext   MemoryType = "context"
	MemoryKnowledge MemoryType = "knowledge"
	MemoryDecision  MemoryType = "decision"
)

// Memory is a long-term or workflow-scoped note an agent stored
// through the memory tool. The embedding vector itself lives in the
// configured vector.Provider, keyed by ID — this row carries the
// structured fields the provider's plain key/value metadata can't
// filter on efficiently (type, scope, priority, tags, relations).
type Memory struct {
	ID         string
	AgentID    string
	WorkflowID string // empty means general (not workflow-scoped)
	Type       MemoryType
	Content    string
	Metadata   map[string]any
	Priority   float64
	Tags       []string
	Relations  []string
	CreatedAt  time.Time
}

type MCPServerStatus string

const (
	MCPServerUp      MCPServerStatus = "up"
	MCPServerDown    MCPServerStatus = "down"
	MCPServerUnknown MCPServerStatus = "unknown"
)

type MCPServerRecord struct {
	ID          string
	Name        string
	Transport   string
	Endpoint    string
	Status      MCPServerStatus
	LastProbeAt *time.Time
	CreatedAt   time.Time
}

type MCPCallLogEntry struct {
	ID        string
	ServerID  string
	ToolName  string
	LatencyMS int64
	Status    string
	Error     string
	CalledAt  time.Time
}

type ValidationDecision string

const (
	ValidationPending  ValidationDecision = "pending"
	ValidationApproved ValidationDecision = "approved"
	ValidationDenied   ValidationDecision = "denied"
)

type ValidationRequest struct {
	ID         string
	WorkflowID string
	ToolCallID string
	ToolName   string
	RiskLevel  string
	Arguments  string
	Decision   ValidationDecision
	CreatedAt  time.Time
	DecidedAt  *time.Time
}
