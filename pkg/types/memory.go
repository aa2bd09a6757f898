package types

import "time"

// MemoryType classifies what kind of knowledge a node carries.
type MemoryType string

const (
	MemoryFact       MemoryType = "fact"       // Stable statement about the world or a person
	MemoryPreference MemoryType = "preference" // Like/dislike or habitual choice
	MemoryTriple     MemoryType = "triple"     // Subject-predicate-object relation
	MemoryInsight    MemoryType = "insight"    // Synthesized higher-level conclusion
	MemoryEpisode    MemoryType = "episode"    // Record of a specific interaction
)

// SourceType records how a node entered the store.
type SourceType string

const (
	SourceAutoCapture  SourceType = "auto_capture" // Captured directly from a conversation turn
	SourceLLMExtract   SourceType = "llm_extract"  // Produced by the extraction model
	SourceReflection   SourceType = "reflection"   // Produced by the reflection engine
	SourceUserExplicit SourceType = "user_explicit" // Stored on explicit request
)

// ValidMemoryType reports whether s is one of the known memory types.
func ValidMemoryType(s string) bool {
	switch MemoryType(s) {
	case MemoryFact, MemoryPreference, MemoryTriple, MemoryInsight, MemoryEpisode:
		return true
	}
	return false
}

// NodeMetadata holds the structured payloads a node may carry beyond its
// content. Triple fields are set for triple nodes, RelatedTo for insights.
// Extra catches anything else without losing it across a round-trip.
type NodeMetadata struct {
	Subject   string            `json:"subject,omitempty"`
	Predicate string            `json:"predicate,omitempty"`
	Object    string            `json:"object,omitempty"`
	RelatedTo []string          `json:"related_to,omitempty"`
	Sentiment string            `json:"sentiment,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether the metadata carries no information at all.
func (m NodeMetadata) IsZero() bool {
	return m.Subject == "" && m.Predicate == "" && m.Object == "" &&
		len(m.RelatedTo) == 0 && m.Sentiment == "" && len(m.Extra) == 0
}

// KnowledgeNode is the atomic unit of long-term memory.
type KnowledgeNode struct {
	ID             int64        `json:"id"`
	Content        string       `json:"content"`
	MemoryType     MemoryType   `json:"memory_type"`
	SourceType     SourceType   `json:"source_type"`
	Importance     float64      `json:"importance"` // [0,1], default 0.5
	Confidence     float64      `json:"confidence"` // [0,1], default 0.7
	Platform       string       `json:"platform,omitempty"`
	Author         string       `json:"author,omitempty"` // Entity the knowledge is about or from
	CreatedAt      time.Time    `json:"created_at"`
	LastAccessedAt time.Time    `json:"last_accessed_at"`
	AccessCount    int          `json:"access_count"`
	Embedding      []byte       `json:"-"` // Little-endian float32 blob, nil until embedded
	Metadata       NodeMetadata `json:"metadata,omitempty"`
}

// RetrievalSource names the channel that contributed most to a result.
type RetrievalSource string

const (
	SourceVector RetrievalSource = "vector"
	SourceFTS    RetrievalSource = "fts"
	SourceGraph  RetrievalSource = "graph"
)

// RetrievalResult pairs a surfaced node with its fused score. Transient;
// never persisted.
type RetrievalResult struct {
	Node   KnowledgeNode   `json:"node"`
	Score  float64         `json:"score"`
	Source RetrievalSource `json:"source"`
}
