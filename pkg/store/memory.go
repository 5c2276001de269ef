package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

// CreateMemory persists a new memory record. The embedding itself is
// the caller's responsibility to upsert into the configured
// vector.Provider under the same ID.
func (s *Store) CreateMemory(ctx context.Context, m *Memory) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "marshal memory metadata", err)
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "marshal memory tags", err)
	}
	relations, err := json.Marshal(m.Relations)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "marshal memory relations", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_entries (id, agent_id, workflow_id, type, content, metadata, priority, tags, relations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, nullString(m.WorkflowID), string(m.Type), m.Content, string(metadata), m.Priority, string(tags), string(relations), m.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create memory", err)
	}
	return nil
}

// GetMemory fetches a single memory record by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, workflow_id, type, content, metadata, priority, tags, relations, created_at
		FROM memory_entries WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("memory " + id + " not found")
	}
	return m, err
}

// DeleteMemory removes a single memory record.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("memory " + id + " not found")
	}
	return nil
}

// ClearMemoriesByType deletes every memory record of the given type,
// scoped to agentID so one agent's clear_by_type never touches
// another's memories.
func (s *Store) ClearMemoriesByType(ctx context.Context, agentID string, memType MemoryType) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE agent_id = ? AND type = ?`, agentID, string(memType))
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "clear memories by type", err)
	}
	return nil
}

// MemoryFilter narrows ListMemories/SearchMemories to a scope, an
// optional type, and an optional set of candidate ids (the latter
// used to join against a vector search's KNN result).
type MemoryFilter struct {
	AgentID    string
	WorkflowID string
	Scope      string // "workflow", "general", or "both"
	Type       MemoryType
	IDs        []string
	Limit      int
}

// ListMemories returns memory records for agentID matching the filter,
// most recent first.
func (s *Store) ListMemories(ctx context.Context, f MemoryFilter) ([]*Memory, error) {
	query := `SELECT id, agent_id, workflow_id, type, content, metadata, priority, tags, relations, created_at FROM memory_entries WHERE agent_id = ?`
	args := []any{f.AgentID}

	switch f.Scope {
	case "workflow":
		query += ` AND workflow_id = ?`
		args = append(args, f.WorkflowID)
	case "general":
		query += ` AND workflow_id IS NULL`
	default: // "both" or unset
		if f.WorkflowID != "" {
			query += ` AND (workflow_id IS NULL OR workflow_id = ?)`
			args = append(args, f.WorkflowID)
		}
	}

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if len(f.IDs) > 0 {
		placeholders := ""
		for i, id := range f.IDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += ` AND id IN (` + placeholders + `)`
	}

	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list memories", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	return scanMemoryRows(row)
}

func scanMemoryRows(row rowScanner) (*Memory, error) {
	m := &Memory{}
	var workflowID sql.NullString
	var memType, metadata, tags, relations string
	if err := row.Scan(&m.ID, &m.AgentID, &workflowID, &memType, &m.Content, &metadata, &m.Priority, &tags, &relations, &m.CreatedAt); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "scan memory", err)
	}
	m.WorkflowID = workflowID.String
	m.Type = MemoryType(memType)
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal memory metadata", err)
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal memory tags", err)
	}
	if err := json.Unmarshal([]byte(relations), &m.Relations); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal memory relations", err)
	}
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
