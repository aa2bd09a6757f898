package types

import "time"

// MemorySession tracks one conversational session with the agent.
type MemorySession struct {
	ID        string     `json:"id"` // UUID
	Platform  string     `json:"platform"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count"`
	Topic     string     `json:"topic,omitempty"`
	Summary   string     `json:"summary,omitempty"`
}

// ConversationTurn is one utterance buffered for extraction.
type ConversationTurn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsolidationEntry is an append-only record of a maintenance run.
type ConsolidationEntry struct {
	ID            int64     `json:"id"`
	Operation     string    `json:"operation"` // "evolution", "reflection", "migration"
	Details       string    `json:"details,omitempty"` // JSON payload
	NodesAffected int       `json:"nodes_affected"`
	CreatedAt     time.Time `json:"created_at"`
}

// Consolidation operation names written to the log.
const (
	OpEvolution  = "evolution"
	OpReflection = "reflection"
	OpMigration  = "migration"
)
