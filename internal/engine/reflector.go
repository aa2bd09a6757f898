package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

// Author groups smaller than this are not worth a generation call.
const reflectionMinGroupSize = 3

// Nodes with no author reflect together under this group key.
const generalAuthorGroup = "_general"

// A cross-entity pass runs when at least this many nodes accumulated
// since the last reflection.
const crossEntityMinNodes = 10

// Capacity limits for one reflection run.
const (
	reflectionRecentLimit    = 200
	crossEntityTranscriptCap = 30
)

// ReflectionEngine periodically reads back recent memories and writes
// higher-level insights: per-author patterns, cross-entity connections,
// and refreshed entity summaries.
type ReflectionEngine struct {
	store      storage.KnowledgeStore
	generator  llm.TextGenerator
	embeddings *EmbeddingService
	cfg        config.MemoryConfig
	logger     *zap.Logger
}

// ReflectionResult reports what one Reflect pass produced.
type ReflectionResult struct {
	Insights         int `json:"insights"`
	Groups           int `json:"groups"`
	SummariesUpdated int `json:"summaries_updated"`
}

// NewReflectionEngine creates a reflection engine over store.
func NewReflectionEngine(store storage.KnowledgeStore, generator llm.TextGenerator, embeddings *EmbeddingService, cfg config.MemoryConfig, logger *zap.Logger) *ReflectionEngine {
	return &ReflectionEngine{
		store:      store,
		generator:  generator,
		embeddings: embeddings,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("reflector"),
	}
}

// ShouldReflect reports whether enough nodes accumulated since the last
// completed reflection to justify a run.
func (r *ReflectionEngine) ShouldReflect(ctx context.Context) (bool, error) {
	if !r.cfg.ReflectionEnabled {
		return false, nil
	}
	since, err := r.lastRun(ctx)
	if err != nil {
		return false, err
	}
	count, err := r.store.CountNodesSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("reflect: count recent nodes: %w", err)
	}
	return count >= r.cfg.ReflectionThreshold, nil
}

// Reflect synthesizes insights from the nodes created since the last
// run. The run is logged when at least one generation call completed,
// even if it produced no insights; a run where every call failed is not
// logged, so the next cycle retries.
func (r *ReflectionEngine) Reflect(ctx context.Context) (ReflectionResult, error) {
	var result ReflectionResult
	if !r.cfg.ReflectionEnabled {
		return result, nil
	}

	since, err := r.lastRun(ctx)
	if err != nil {
		return result, err
	}
	recent, err := r.store.RecentNodes(ctx, storage.NodeFilter{Since: since, Limit: reflectionRecentLimit})
	if err != nil {
		return result, fmt.Errorf("reflect: load recent nodes: %w", err)
	}
	if len(recent) == 0 {
		return result, nil
	}

	attempted, completed := 0, 0
	for author, group := range groupByAuthor(recent) {
		if len(group) < reflectionMinGroupSize {
			continue
		}
		result.Groups++

		attempted++
		insights, ok := r.synthesize(ctx, fmt.Sprintf(reflectionPrompt, author, renderMemoryList(group)))
		if ok {
			completed++
			result.Insights += r.storeInsights(ctx, author, group, insights)
		}

		updated, called := r.refreshEntitySummary(ctx, author, group, insights)
		if called {
			attempted++
		}
		if updated {
			completed++
			result.SummariesUpdated++
		}
	}

	if len(recent) >= crossEntityMinNodes {
		span := recent
		if len(span) > crossEntityTranscriptCap {
			span = span[:crossEntityTranscriptCap]
		}
		attempted++
		insights, ok := r.synthesize(ctx, fmt.Sprintf(crossEntityReflectionPrompt, renderMemoryList(span)))
		if ok {
			completed++
			result.Insights += r.storeInsights(ctx, "", span, insights)
		}
	}

	if attempted > 0 && completed == 0 {
		return result, fmt.Errorf("reflect: all %d generation calls failed", attempted)
	}
	if completed > 0 {
		details, _ := json.Marshal(result)
		if err := r.store.LogConsolidation(ctx, types.OpReflection, string(details), result.Insights); err != nil {
			return result, fmt.Errorf("reflect: log run: %w", err)
		}
		r.logger.Info("reflection pass complete",
			zap.Int("insights", result.Insights),
			zap.Int("groups", result.Groups),
			zap.Int("summaries", result.SummariesUpdated))
	}
	return result, nil
}

// lastRun returns the timestamp of the last logged reflection, or the
// zero time when reflection has never completed.
func (r *ReflectionEngine) lastRun(ctx context.Context) (time.Time, error) {
	entry, err := r.store.LastConsolidation(ctx, types.OpReflection)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reflect: last run: %w", err)
	}
	return entry.CreatedAt, nil
}

// insightCandidate is one element of the model's JSON response.
type insightCandidate struct {
	Content    string   `json:"content"`
	Importance float64  `json:"importance"`
	Confidence float64  `json:"confidence"`
	RelatedTo  []string `json:"related_to"`
	Sentiment  string   `json:"sentiment"`
}

// synthesize runs one generation call and parses its JSON array. The
// second return is false only for a failed call; an empty or malformed
// array still counts as a completed attempt.
func (r *ReflectionEngine) synthesize(ctx context.Context, prompt string) ([]insightCandidate, bool) {
	response, err := r.generator.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("insight generation failed", zap.Error(err))
		return nil, false
	}
	raw := llm.ExtractJSON(response)
	if raw == "" {
		return nil, true
	}
	var insights []insightCandidate
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		r.logger.Warn("malformed insight response", zap.Error(err))
		return nil, true
	}
	return insights, true
}

// storeInsights persists insights derived from sources, linking each
// back to every source node. Returns the number stored.
func (r *ReflectionEngine) storeInsights(ctx context.Context, author string, sources []types.KnowledgeNode, insights []insightCandidate) int {
	stored := 0
	for _, ins := range insights {
		content := strings.TrimSpace(ins.Content)
		if content == "" {
			continue
		}

		var blob []byte
		if vec, err := r.embeddings.EmbedText(ctx, content); err == nil {
			blob = vector.ToBlob(vec)
		}

		node := &types.KnowledgeNode{
			Content:    content,
			MemoryType: types.MemoryInsight,
			SourceType: types.SourceReflection,
			Importance: clamp01(ins.Importance),
			Confidence: clamp01(ins.Confidence),
			Platform:   sources[0].Platform,
			Author:     author,
			Embedding:  blob,
			Metadata: types.NodeMetadata{
				RelatedTo: ins.RelatedTo,
				Sentiment: ins.Sentiment,
			},
		}
		id, err := r.store.AddNode(ctx, node)
		if err != nil {
			r.logger.Warn("store insight failed", zap.Error(err))
			continue
		}
		for _, src := range sources {
			err := r.store.AddEdge(ctx, &types.KnowledgeEdge{
				SourceID: id,
				TargetID: src.ID,
				Relation: types.RelationDerivedFrom,
				Weight:   0.8,
			})
			if err != nil {
				r.logger.Warn("link insight failed", zap.Int64("source", src.ID), zap.Error(err))
			}
		}
		if ins.Sentiment != "" && author != "" {
			r.recordSentiment(ctx, sources[0].Platform, author, ins)
		}
		stored++
	}
	return stored
}

// refreshEntitySummary regenerates the stored summary for author from
// the group's memories. Unknown entities are skipped without a
// generation call; reflection never fabricates a profile for someone
// the agent has not met. The second return reports whether a call was
// made at all.
func (r *ReflectionEngine) refreshEntitySummary(ctx context.Context, author string, group []types.KnowledgeNode, insights []insightCandidate) (bool, bool) {
	profile, err := r.store.GetEntity(ctx, group[0].Platform, author)
	if errors.Is(err, storage.ErrNotFound) {
		return false, false
	}
	if err != nil {
		r.logger.Warn("load entity failed", zap.String("author", author), zap.Error(err))
		return false, false
	}

	material := renderMemoryList(group)
	if len(insights) > 0 {
		var extra strings.Builder
		for _, ins := range insights {
			fmt.Fprintf(&extra, "\n- %s", ins.Content)
		}
		material += extra.String()
	}
	summary, err := r.generator.Complete(ctx, fmt.Sprintf(entitySummaryPrompt, author, material))
	if err != nil {
		r.logger.Warn("summary generation failed", zap.String("author", author), zap.Error(err))
		return false, true
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false, true
	}
	if err := r.store.UpdateEntitySummary(ctx, profile.ID, summary); err != nil {
		r.logger.Warn("update summary failed", zap.String("author", author), zap.Error(err))
		return false, true
	}
	return true, true
}

// recordSentiment updates the entity's current sentiment and appends a
// trajectory point when the insight carries a sentiment label.
func (r *ReflectionEngine) recordSentiment(ctx context.Context, platform, author string, ins insightCandidate) {
	profile, err := r.store.GetEntity(ctx, platform, author)
	if err != nil {
		return
	}
	score := sentimentScore(ins.Sentiment)
	if err := r.store.UpdateEntitySentiment(ctx, profile.ID, ins.Sentiment, score); err != nil {
		r.logger.Warn("update sentiment failed", zap.Error(err))
		return
	}
	err = r.store.AddSentimentEntry(ctx, &types.SentimentEntry{
		EntityID:  profile.ID,
		Sentiment: ins.Sentiment,
		Score:     score,
		Context:   ins.Content,
	})
	if err != nil {
		r.logger.Warn("append sentiment entry failed", zap.Error(err))
	}
}

func sentimentScore(label string) float64 {
	switch label {
	case "positive":
		return 0.5
	case "negative":
		return -0.5
	default:
		return 0
	}
}

func groupByAuthor(nodes []types.KnowledgeNode) map[string][]types.KnowledgeNode {
	groups := make(map[string][]types.KnowledgeNode)
	for _, n := range nodes {
		key := n.Author
		if key == "" {
			key = generalAuthorGroup
		}
		groups[key] = append(groups[key], n)
	}
	return groups
}

func renderMemoryList(nodes []types.KnowledgeNode) string {
	var sb strings.Builder
	for i, n := range nodes {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s", n.Content)
	}
	return sb.String()
}
