package engine

import (
	"context"
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

// Memory is the single entry point the agent uses: it owns the
// retriever, extractor, evolver, and reflector and coordinates them
// over one knowledge store.
type Memory struct {
	store      storage.KnowledgeStore
	cfg        config.MemoryConfig
	logger     *zap.Logger
	embeddings *EmbeddingService
	retriever  *HybridRetriever
	assembler  *ContextAssembler
	extractor  *MemoryExtractor
	evolver    *MemoryEvolver
	reflector  *ReflectionEngine
}

// New wires a Memory facade from its dependencies.
func New(store storage.KnowledgeStore, generator llm.TextGenerator, embedder llm.Embedder, cfg config.MemoryConfig, logger *zap.Logger) (*Memory, error) {
	logger = logging.OrNop(logger)
	embeddings, err := NewEmbeddingService(embedder, logger)
	if err != nil {
		return nil, err
	}
	return &Memory{
		store:      store,
		cfg:        cfg,
		logger:     logger.Named("memory"),
		embeddings: embeddings,
		retriever:  NewHybridRetriever(store, embeddings, cfg, logger),
		assembler:  NewContextAssembler(cfg.ContextTotalBudget),
		extractor:  NewMemoryExtractor(store, generator, embeddings, cfg, logger),
		evolver:    NewMemoryEvolver(store, cfg, logger),
		reflector:  NewReflectionEngine(store, generator, embeddings, cfg, logger),
	}, nil
}

// StartSession opens a conversational session on a platform.
func (m *Memory) StartSession(ctx context.Context, platform string) (*types.MemorySession, error) {
	return m.store.StartSession(ctx, platform)
}

// EndSession closes a session: buffered turns are flushed through
// extraction, then evolution runs and reflection runs if due. Failed
// maintenance is logged, not returned; the session itself always ends.
func (m *Memory) EndSession(ctx context.Context, sessionID, summary, topic string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if _, err := m.extractor.Flush(ctx, session.Platform); err != nil {
		m.logger.Warn("session flush extraction failed", zap.Error(err))
	}
	if err := m.store.EndSession(ctx, sessionID, summary, topic); err != nil {
		return err
	}

	if _, err := m.evolver.Evolve(ctx); err != nil {
		m.logger.Warn("post-session evolution failed", zap.Error(err))
	}
	m.reflectIfDue(ctx)
	return nil
}

// ProcessTurn records one conversation turn: the session turn count
// advances, the speaker's entity profile is refreshed, and the turn
// joins the extraction buffer. Extraction fires once enough turns have
// accumulated.
func (m *Memory) ProcessTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.store.IncrementSessionTurns(ctx, sessionID); err != nil {
		return err
	}

	if turn.Role == "user" && turn.Author != "" {
		_, err := m.store.UpsertEntity(ctx, &types.EntityProfile{
			Platform:   session.Platform,
			EntityName: turn.Author,
			EntityType: "person",
		})
		if err != nil {
			m.logger.Warn("entity upsert failed", zap.String("author", turn.Author), zap.Error(err))
		}
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	m.extractor.AddTurn(turn)

	if m.extractor.BufferedTurns() >= m.cfg.ExtractionMinTurns {
		if _, err := m.extractor.ExtractFromBuffer(ctx, session.Platform); err != nil {
			m.logger.Warn("turn extraction failed", zap.Error(err))
		}
	}
	return nil
}

// RetrieveMemories surfaces up to limit memories relevant to query.
func (m *Memory) RetrieveMemories(ctx context.Context, query string, limit int) ([]types.RetrievalResult, error) {
	return m.retriever.Retrieve(ctx, query, limit)
}

// ContextRequest describes one prompt-assembly call.
type ContextRequest struct {
	SystemPrompt    string
	Platform        string
	Author          string
	UserContent     string
	FewShotExamples []string
}

// GetAssembledContext retrieves memories relevant to the user content,
// loads the author's profile when known, and renders everything into a
// budget-fitted prompt.
func (m *Memory) GetAssembledContext(ctx context.Context, req ContextRequest) (AssembledContext, error) {
	if req.UserContent == "" {
		return AssembledContext{}, fmt.Errorf("memory: empty user content")
	}

	memories, err := m.retriever.Retrieve(ctx, req.UserContent, m.cfg.RetrievalLimit)
	if err != nil {
		return AssembledContext{}, err
	}

	var entity *types.EntityProfile
	if req.Author != "" && req.Platform != "" {
		profile, err := m.store.GetEntity(ctx, req.Platform, req.Author)
		if err == nil {
			entity = profile
		} else if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("load entity failed", zap.String("author", req.Author), zap.Error(err))
		}
	}

	return m.assembler.Assemble(ContextInput{
		SystemPrompt:    req.SystemPrompt,
		Entity:          entity,
		Memories:        memories,
		FewShotExamples: req.FewShotExamples,
		UserContent:     req.UserContent,
	}), nil
}

// StoreFact stores an explicitly provided memory, skipping it when a
// near-identical one already exists.
func (m *Memory) StoreFact(ctx context.Context, content, platform, author string, importance float64) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("memory: empty fact")
	}

	var blob []byte
	vec, err := m.embeddings.EmbedText(ctx, content)
	if err != nil {
		m.logger.Warn("storing fact without embedding", zap.Error(err))
	} else {
		existing, err := m.store.EmbeddingCandidates(ctx, m.cfg.DedupCandidateLimit, storage.CandidateFilter{})
		if err != nil {
			return 0, err
		}
		if m.embeddings.IsDuplicate(vec, existing, m.cfg.DedupThreshold) {
			return 0, storage.ErrDuplicate
		}
		blob = vector.ToBlob(vec)
	}

	return m.store.AddNode(ctx, &types.KnowledgeNode{
		Content:    content,
		MemoryType: types.MemoryFact,
		SourceType: types.SourceUserExplicit,
		Importance: clamp01(importance),
		Confidence: 1.0,
		Platform:   platform,
		Author:     author,
		Embedding:  blob,
	})
}

// GetEntityProfile returns what the agent knows about someone.
func (m *Memory) GetEntityProfile(ctx context.Context, platform, name string) (*types.EntityProfile, error) {
	return m.store.GetEntity(ctx, platform, name)
}

// FrequentContacts returns the entities interacted with most, across
// all platforms when platform is empty.
func (m *Memory) FrequentContacts(ctx context.Context, platform string, limit int) ([]types.EntityProfile, error) {
	return m.store.FrequentEntities(ctx, platform, limit)
}

// MaintenanceResult reports one RunMaintenance invocation.
type MaintenanceResult struct {
	Evolution  EvolutionResult  `json:"evolution"`
	Reflection ReflectionResult `json:"reflection"`
	Reflected  bool             `json:"reflected"`
}

// RunMaintenance is the scheduler entry point: one evolution pass, then
// reflection if enough memories accumulated since the last one.
func (m *Memory) RunMaintenance(ctx context.Context) (MaintenanceResult, error) {
	var result MaintenanceResult

	evo, err := m.evolver.Evolve(ctx)
	if err != nil {
		return result, err
	}
	result.Evolution = evo

	due, err := m.reflector.ShouldReflect(ctx)
	if err != nil {
		return result, err
	}
	if due {
		refl, err := m.reflector.Reflect(ctx)
		if err != nil {
			return result, err
		}
		result.Reflection = refl
		result.Reflected = true
	}
	return result, nil
}

// RememberInteraction captures one notable exchange directly as an
// episode, without waiting for extraction.
func (m *Memory) RememberInteraction(ctx context.Context, platform, author, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("memory: empty interaction")
	}

	if author != "" {
		_, err := m.store.UpsertEntity(ctx, &types.EntityProfile{
			Platform:   platform,
			EntityName: author,
			EntityType: "person",
		})
		if err != nil {
			m.logger.Warn("entity upsert failed", zap.String("author", author), zap.Error(err))
		}
	}

	var blob []byte
	if vec, err := m.embeddings.EmbedText(ctx, content); err == nil {
		blob = vector.ToBlob(vec)
	}
	return m.store.AddNode(ctx, &types.KnowledgeNode{
		Content:    content,
		MemoryType: types.MemoryEpisode,
		SourceType: types.SourceAutoCapture,
		Importance: 0.5,
		Confidence: 1.0,
		Platform:   platform,
		Author:     author,
		Embedding:  blob,
	})
}

// ContextForPost assembles background for composing a post about a
// topic: relevant memories only, no per-person profile.
func (m *Memory) ContextForPost(ctx context.Context, topic string) (AssembledContext, error) {
	return m.GetAssembledContext(ctx, ContextRequest{UserContent: topic})
}

// Close releases the underlying store.
func (m *Memory) Close() error {
	return m.store.Close()
}

func (m *Memory) reflectIfDue(ctx context.Context) {
	due, err := m.reflector.ShouldReflect(ctx)
	if err != nil {
		m.logger.Warn("reflection check failed", zap.Error(err))
		return
	}
	if !due {
		return
	}
	if _, err := m.reflector.Reflect(ctx); err != nil {
		m.logger.Warn("post-session reflection failed", zap.Error(err))
	}
}
