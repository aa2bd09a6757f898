package types

import "time"

// EntityProfile aggregates what the agent knows about a person or account
// it interacts with. Unique per (platform, entity_name).
type EntityProfile struct {
	ID                int64     `json:"id"`
	Platform          string    `json:"platform"`
	EntityName        string    `json:"entity_name"`
	EntityType        string    `json:"entity_type,omitempty"` // e.g. "person", "bot", "organization"
	DisplayName       string    `json:"display_name,omitempty"`
	Summary           string    `json:"summary,omitempty"` // Regenerated by reflection
	Interests         []string  `json:"interests,omitempty"`
	PersonalityNotes  string    `json:"personality_notes,omitempty"`
	FirstInteraction  time.Time `json:"first_interaction"`
	LastInteraction   time.Time `json:"last_interaction"`
	InteractionCount  int       `json:"interaction_count"`
	Sentiment         string    `json:"sentiment"`       // Label, default "neutral"
	SentimentScore    float64   `json:"sentiment_score"` // [-1,1], default 0
	TrustLevel        float64   `json:"trust_level"`     // [0,1], default 0.5
	Embedding         []byte    `json:"-"`
}

// SentimentEntry is one point in an entity's sentiment trajectory.
type SentimentEntry struct {
	ID         int64     `json:"id"`
	EntityID   int64     `json:"entity_id"`
	Sentiment  string    `json:"sentiment"`
	Score      float64   `json:"score"`
	Context    string    `json:"context,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
