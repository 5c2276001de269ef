package store

// schema is the relational layout backing the data model: workflows,
// messages, tool executions, thinking steps, sub-agent executions,
// tasks, memory entries, MCP server records and call log, and
// validation requests. One sqlite file per data directory, matching
// a single-embedded-database posture.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id                     TEXT PRIMARY KEY,
	agent_id               TEXT NOT NULL,
	status                 TEXT NOT NULL,
	goal                   TEXT NOT NULL,
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL,
	completed_at           DATETIME,
	cancel_requested        INTEGER NOT NULL DEFAULT 0,
	current_context_tokens INTEGER NOT NULL DEFAULT 0,
	model_id               TEXT,
	total_tokens_input     INTEGER NOT NULL DEFAULT 0,
	total_tokens_output    INTEGER NOT NULL DEFAULT 0,
	total_cost_usd         REAL NOT NULL DEFAULT 0,
	error                  TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_workflow ON messages(workflow_id, seq);

CREATE TABLE IF NOT EXISTS tool_executions (
	id             TEXT PRIMARY KEY,
	workflow_id    TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	tool_name      TEXT NOT NULL,
	tool_call_id   TEXT NOT NULL,
	arguments      TEXT NOT NULL,
	result         TEXT,
	status         TEXT NOT NULL,
	risk_level     TEXT NOT NULL,
	started_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_tool_exec_workflow ON tool_executions(workflow_id);

CREATE TABLE IF NOT EXISTS thinking_steps (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	content     TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thinking_workflow ON thinking_steps(workflow_id, seq);

CREATE TABLE IF NOT EXISTS sub_agent_executions (
	id               TEXT PRIMARY KEY,
	parent_workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	child_workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	mode             TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	error            TEXT
);
CREATE INDEX IF NOT EXISTS idx_subagent_parent ON sub_agent_executions(parent_workflow_id);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL,
	depends_on  TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_workflow ON tasks(workflow_id);

CREATE TABLE IF NOT EXISTS memory_entries (
	id          TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL,
	workflow_id TEXT,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	priority    REAL NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	relations   TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory_entries(agent_id);
CREATE INDEX IF NOT EXISTS idx_memory_workflow ON memory_entries(workflow_id);
CREATE INDEX IF NOT EXISTS idx_memory_type ON memory_entries(type);

CREATE TABLE IF NOT EXISTS mcp_servers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	transport    TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	status       TEXT NOT NULL,
	last_probe_at DATETIME,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mcp_call_log (
	id          TEXT PRIMARY KEY,
	server_id   TEXT NOT NULL REFERENCES mcp_servers(id) ON DELETE CASCADE,
	tool_name   TEXT NOT NULL,
	latency_ms  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	called_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mcp_call_server ON mcp_call_log(server_id, called_at);

CREATE TABLE IF NOT EXISTS validation_requests (
	id            TEXT PRIMARY KEY,
	workflow_id   TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	tool_call_id  TEXT NOT NULL,
	tool_name     TEXT NOT NULL,
	risk_level    TEXT NOT NULL,
	arguments     TEXT NOT NULL,
	decision      TEXT NOT NULL DEFAULT 'pending',
	created_at    DATETIME NOT NULL,
	decided_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_validation_workflow ON validation_requests(workflow_id);
`
