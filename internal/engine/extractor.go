package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

// MemoryExtractor buffers conversation turns and periodically asks the
// generation model to distill them into knowledge nodes. The buffer is
// cleared before the model call, so a failed extraction drops those
// turns rather than re-submitting them.
type MemoryExtractor struct {
	store      storage.KnowledgeStore
	generator  llm.TextGenerator
	embeddings *EmbeddingService
	cfg        config.MemoryConfig
	logger     *zap.Logger

	mu     sync.Mutex
	buffer []types.ConversationTurn
}

// NewMemoryExtractor creates an extractor over store.
func NewMemoryExtractor(store storage.KnowledgeStore, generator llm.TextGenerator, embeddings *EmbeddingService, cfg config.MemoryConfig, logger *zap.Logger) *MemoryExtractor {
	return &MemoryExtractor{
		store:      store,
		generator:  generator,
		embeddings: embeddings,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("extractor"),
	}
}

// AddTurn buffers one conversation turn. Turns are dropped when
// extraction is disabled so the buffer cannot grow unbounded.
func (e *MemoryExtractor) AddTurn(turn types.ConversationTurn) {
	if !e.cfg.ExtractionEnabled {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, turn)
}

// BufferedTurns returns the number of turns waiting for extraction.
func (e *MemoryExtractor) BufferedTurns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// ExtractFromBuffer runs extraction over the buffered turns when enough
// have accumulated, returning the IDs of the nodes it created. Below
// the turn threshold it is a no-op.
func (e *MemoryExtractor) ExtractFromBuffer(ctx context.Context, platform string) ([]int64, error) {
	if !e.cfg.ExtractionEnabled {
		return nil, nil
	}

	e.mu.Lock()
	if len(e.buffer) < e.cfg.ExtractionMinTurns {
		e.mu.Unlock()
		return nil, nil
	}
	turns := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	return e.ExtractFromTurns(ctx, turns, platform)
}

// Flush extracts whatever is buffered regardless of the turn
// threshold. Used when a session ends so short exchanges still leave a
// trace.
func (e *MemoryExtractor) Flush(ctx context.Context, platform string) ([]int64, error) {
	if !e.cfg.ExtractionEnabled {
		return nil, nil
	}

	e.mu.Lock()
	turns := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	return e.ExtractFromTurns(ctx, turns, platform)
}

// extractedMemory is one element of the model's JSON response.
type extractedMemory struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Author     string   `json:"author"`
	Importance float64  `json:"importance"`
	Confidence float64  `json:"confidence"`
	Subject    string   `json:"subject"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	RelatedTo  []string `json:"related_to"`
	Sentiment  string   `json:"sentiment"`
}

// ExtractFromTurns runs extraction over an explicit transcript,
// bypassing the buffer.
func (e *MemoryExtractor) ExtractFromTurns(ctx context.Context, turns []types.ConversationTurn, platform string) ([]int64, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, renderTranscript(turns))
	response, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: generate: %w", err)
	}

	var candidates []extractedMemory
	raw := llm.ExtractJSON(response)
	if raw == "" {
		e.logger.Warn("no json in extraction response")
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		e.logger.Warn("malformed extraction response", zap.Error(err))
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	fallbackAuthor := lastUserAuthor(turns)
	var created []int64
	for _, c := range candidates {
		id, ok := e.storeCandidate(ctx, c, platform, fallbackAuthor)
		if ok {
			created = append(created, id)
		}
	}
	if len(created) > 0 {
		e.logger.Info("extraction stored memories",
			zap.Int("count", len(created)), zap.String("platform", platform))
	}
	return created, nil
}

// storeCandidate validates, deduplicates, and persists one extracted
// memory. Invalid or duplicate candidates are dropped silently; a
// storage failure is logged and skips the candidate.
func (e *MemoryExtractor) storeCandidate(ctx context.Context, c extractedMemory, platform, fallbackAuthor string) (int64, bool) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return 0, false
	}
	memoryType := types.MemoryType(c.Type)
	if !types.ValidMemoryType(c.Type) {
		memoryType = types.MemoryFact
	}
	importance := clamp01(c.Importance)
	if importance < e.cfg.ExtractionMinImportance {
		return 0, false
	}

	var blob []byte
	vec, err := e.embeddings.EmbedText(ctx, content)
	if err != nil {
		e.logger.Warn("storing memory without embedding", zap.Error(err))
	} else {
		// Reloaded per candidate so duplicates within one batch are
		// caught against the nodes stored just before them.
		existing, err := e.store.EmbeddingCandidates(ctx, e.cfg.DedupCandidateLimit, storage.CandidateFilter{})
		if err != nil {
			e.logger.Warn("load dedup candidates failed", zap.Error(err))
		} else if e.embeddings.IsDuplicate(vec, existing, e.cfg.DedupThreshold) {
			return 0, false
		}
		blob = vector.ToBlob(vec)
	}

	author := c.Author
	if author == "" {
		author = fallbackAuthor
	}
	node := &types.KnowledgeNode{
		Content:    content,
		MemoryType: memoryType,
		SourceType: types.SourceLLMExtract,
		Importance: importance,
		Confidence: clamp01(c.Confidence),
		Platform:   platform,
		Author:     author,
		Embedding:  blob,
		Metadata: types.NodeMetadata{
			Subject:   c.Subject,
			Predicate: c.Predicate,
			Object:    c.Object,
			RelatedTo: c.RelatedTo,
			Sentiment: c.Sentiment,
		},
	}
	id, err := e.store.AddNode(ctx, node)
	if err != nil {
		e.logger.Warn("store extracted memory failed", zap.Error(err))
		return 0, false
	}

	if node.MemoryType == types.MemoryTriple {
		e.linkTriple(ctx, id, c)
	}
	for _, ref := range c.RelatedTo {
		if target, ok := e.resolveNode(ctx, ref); ok && target != id {
			e.addEdge(ctx, id, target, types.RelationRelatedTo, 0.5)
		}
	}
	return id, true
}

// linkTriple connects a triple node into the graph. The subject and
// object are resolved to existing nodes by text lookup and the triple
// links to each with the predicate as the relation; when neither side
// resolves, or in legacy mode, the triple links to itself so the
// predicate is still traversable.
func (e *MemoryExtractor) linkTriple(ctx context.Context, nodeID int64, c extractedMemory) {
	predicate := strings.TrimSpace(c.Predicate)
	if predicate == "" {
		return
	}
	weight := clamp01(c.Confidence)
	if weight == 0 {
		weight = 0.5
	}

	if !e.cfg.LegacyTripleSelfEdge {
		linked := false
		if subj, ok := e.resolveNode(ctx, c.Subject); ok && subj != nodeID {
			e.addEdge(ctx, nodeID, subj, predicate, weight)
			linked = true
		}
		if obj, ok := e.resolveNode(ctx, c.Object); ok && obj != nodeID {
			e.addEdge(ctx, nodeID, obj, predicate, weight)
			linked = true
		}
		if linked {
			return
		}
	}
	e.addEdge(ctx, nodeID, nodeID, predicate, weight)
}

// resolveNode finds the best existing node for a short phrase.
func (e *MemoryExtractor) resolveNode(ctx context.Context, phrase string) (int64, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return 0, false
	}
	matches, err := e.store.FTSSearch(ctx, phrase, 1)
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	return matches[0].NodeID, true
}

func (e *MemoryExtractor) addEdge(ctx context.Context, source, target int64, relation string, weight float64) {
	err := e.store.AddEdge(ctx, &types.KnowledgeEdge{
		SourceID: source,
		TargetID: target,
		Relation: relation,
		Weight:   weight,
	})
	if err != nil {
		e.logger.Warn("add edge failed",
			zap.Int64("source", source), zap.Int64("target", target), zap.Error(err))
	}
}

func renderTranscript(turns []types.ConversationTurn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		author := t.Author
		if author == "" {
			author = t.Role
		}
		fmt.Fprintf(&sb, "%s (%s): %s", author, t.Role, t.Content)
	}
	return sb.String()
}

func lastUserAuthor(turns []types.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" && turns[i].Author != "" {
			return turns[i].Author
		}
	}
	return ""
}
