package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// StartSession opens a new session for a platform.
func (s *Store) StartSession(ctx context.Context, platform string) (*types.MemorySession, error) {
	if platform == "" {
		return nil, fmt.Errorf("%w: platform is required", storage.ErrInvalidInput)
	}
	session := &types.MemorySession{
		ID:        uuid.NewString(),
		Platform:  platform,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_sessions (id, platform, started_at, turn_count)
		VALUES ($1, $2, $3, 0)`,
		session.ID, session.Platform, session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: start session: %w", err)
	}
	return session, nil
}

// EndSession closes a session, recording its summary and topic.
func (s *Store) EndSession(ctx context.Context, id, summary, topic string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_sessions
		SET ended_at = $1, summary = $2, topic = $3
		WHERE id = $4`,
		time.Now().UTC(), nullableString(summary), nullableString(topic), id)
	if err != nil {
		return fmt.Errorf("postgres: end session %s: %w", id, err)
	}
	return requireSessionRow(res, id)
}

// IncrementSessionTurns bumps a session's turn counter.
func (s *Store) IncrementSessionTurns(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_sessions SET turn_count = turn_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment session %s turns: %w", id, err)
	}
	return requireSessionRow(res, id)
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*types.MemorySession, error) {
	var (
		session        types.MemorySession
		endedAt        sql.NullTime
		topic, summary sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, platform, started_at, ended_at, turn_count, topic, summary
		FROM memory_sessions WHERE id = $1`, id).Scan(
		&session.ID, &session.Platform, &session.StartedAt,
		&endedAt, &session.TurnCount, &topic, &summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get session %s: %w", id, err)
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	session.Topic = topic.String
	session.Summary = summary.String
	return &session, nil
}

// LogConsolidation appends an entry to the consolidation log.
func (s *Store) LogConsolidation(ctx context.Context, operation, details string, nodesAffected int) error {
	if operation == "" {
		return fmt.Errorf("%w: operation is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consolidation_log (operation, details, nodes_affected, created_at)
		VALUES ($1, $2, $3, $4)`,
		operation, nullableString(details), nodesAffected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: log consolidation: %w", err)
	}
	return nil
}

// LastConsolidation returns the most recent entry for an operation, or
// storage.ErrNotFound.
func (s *Store) LastConsolidation(ctx context.Context, operation string) (*types.ConsolidationEntry, error) {
	var (
		entry   types.ConsolidationEntry
		details sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, operation, details, nodes_affected, created_at
		FROM consolidation_log
		WHERE operation = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, operation).Scan(
		&entry.ID, &entry.Operation, &details, &entry.NodesAffected, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: last consolidation %s: %w", operation, err)
	}
	entry.Details = details.String
	return &entry, nil
}

func requireSessionRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected for session %s: %w", id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
