package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

const entityColumns = `id, platform, entity_name, entity_type, display_name, summary,
	interests, personality_notes, first_interaction_at, last_interaction_at,
	interaction_count, sentiment, sentiment_score, trust_level, embedding`

// UpsertEntity creates or refreshes a profile keyed on
// (platform, entity_name). On conflict the interaction count is
// incremented and last_interaction_at refreshed; summary and
// display_name keep their existing values when the incoming ones are
// empty. Returns the profile's ID.
func (s *Store) UpsertEntity(ctx context.Context, profile *types.EntityProfile) (int64, error) {
	if profile == nil || profile.Platform == "" || profile.EntityName == "" {
		return 0, fmt.Errorf("%w: platform and entity name are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if profile.FirstInteraction.IsZero() {
		profile.FirstInteraction = now
	}
	if profile.LastInteraction.IsZero() {
		profile.LastInteraction = now
	}
	if profile.Sentiment == "" {
		profile.Sentiment = "neutral"
	}
	if profile.TrustLevel == 0 {
		profile.TrustLevel = 0.5
	}
	if profile.InteractionCount < 1 {
		profile.InteractionCount = 1
	}

	var interestsJSON sql.NullString
	if len(profile.Interests) > 0 {
		raw, err := json.Marshal(profile.Interests)
		if err != nil {
			return 0, fmt.Errorf("sqlite: marshal interests: %w", err)
		}
		interestsJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_profiles
			(platform, entity_name, entity_type, display_name, summary, interests,
			 personality_notes, first_interaction_at, last_interaction_at,
			 interaction_count, sentiment, sentiment_score, trust_level, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, entity_name) DO UPDATE SET
			interaction_count = interaction_count + 1,
			last_interaction_at = excluded.last_interaction_at,
			entity_type = COALESCE(NULLIF(excluded.entity_type, ''), entity_type),
			display_name = COALESCE(NULLIF(excluded.display_name, ''), display_name),
			summary = COALESCE(NULLIF(excluded.summary, ''), summary)`,
		profile.Platform, profile.EntityName,
		nullableString(profile.EntityType), nullableString(profile.DisplayName),
		nullableString(profile.Summary), interestsJSON,
		nullableString(profile.PersonalityNotes),
		profile.FirstInteraction, profile.LastInteraction,
		profile.InteractionCount, profile.Sentiment, profile.SentimentScore,
		profile.TrustLevel, profile.Embedding,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: upsert entity %s/%s: %w", profile.Platform, profile.EntityName, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM entity_profiles WHERE platform = ? AND entity_name = ?`,
		profile.Platform, profile.EntityName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: entity id after upsert: %w", err)
	}
	profile.ID = id
	return id, nil
}

// GetEntity returns a profile by its (platform, entity_name) key.
func (s *Store) GetEntity(ctx context.Context, platform, entityName string) (*types.EntityProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entity_profiles WHERE platform = ? AND entity_name = ?`,
		platform, entityName)
	return scanEntityRow(row)
}

// GetEntityByID returns a profile by ID.
func (s *Store) GetEntityByID(ctx context.Context, id int64) (*types.EntityProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entity_profiles WHERE id = ?`, id)
	return scanEntityRow(row)
}

// UpdateEntitySummary replaces a profile's summary.
func (s *Store) UpdateEntitySummary(ctx context.Context, id int64, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entity_profiles SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("sqlite: update entity %d summary: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateEntitySentiment replaces a profile's current sentiment.
func (s *Store) UpdateEntitySentiment(ctx context.Context, id int64, sentiment string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entity_profiles SET sentiment = ?, sentiment_score = ? WHERE id = ?`,
		sentiment, score, id)
	if err != nil {
		return fmt.Errorf("sqlite: update entity %d sentiment: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateEntityEmbedding stores the profile's embedding blob.
func (s *Store) UpdateEntityEmbedding(ctx context.Context, id int64, embedding []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entity_profiles SET embedding = ? WHERE id = ?`, embedding, id)
	if err != nil {
		return fmt.Errorf("sqlite: update entity %d embedding: %w", id, err)
	}
	return requireRow(res, id)
}

// FrequentEntities returns profiles ordered by interaction count
// descending. Empty platform means all platforms.
func (s *Store) FrequentEntities(ctx context.Context, platform string, limit int) ([]types.EntityProfile, error) {
	if limit < 1 {
		limit = 20
	}
	query := `SELECT ` + entityColumns + ` FROM entity_profiles`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY interaction_count DESC, last_interaction_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: frequent entities: %w", err)
	}
	defer rows.Close()

	var profiles []types.EntityProfile
	for rows.Next() {
		p, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate entities: %w", err)
	}
	return profiles, nil
}

// AddSentimentEntry appends a point to an entity's sentiment history.
func (s *Store) AddSentimentEntry(ctx context.Context, entry *types.SentimentEntry) error {
	if entry == nil || entry.EntityID == 0 || entry.Sentiment == "" {
		return fmt.Errorf("%w: entity id and sentiment are required", storage.ErrInvalidInput)
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_history (entity_id, sentiment, score, context, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.EntityID, entry.Sentiment, entry.Score,
		nullableString(entry.Context), entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("sqlite: insert sentiment entry: %w", err)
	}
	return nil
}

// SentimentTrajectory returns an entity's sentiment history, newest
// first.
func (s *Store) SentimentTrajectory(ctx context.Context, entityID int64, limit int) ([]types.SentimentEntry, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, sentiment, score, context, recorded_at
		FROM sentiment_history
		WHERE entity_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: sentiment trajectory: %w", err)
	}
	defer rows.Close()

	var entries []types.SentimentEntry
	for rows.Next() {
		var (
			e       types.SentimentEntry
			context sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Sentiment, &e.Score, &context, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan sentiment entry: %w", err)
		}
		e.Context = context.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate sentiment entries: %w", err)
	}
	return entries, nil
}

func scanEntity(row rowScanner) (*types.EntityProfile, error) {
	var (
		p                                          types.EntityProfile
		entityType, displayName, summary           sql.NullString
		interestsJSON, personalityNotes            sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Platform, &p.EntityName, &entityType, &displayName, &summary,
		&interestsJSON, &personalityNotes,
		&p.FirstInteraction, &p.LastInteraction,
		&p.InteractionCount, &p.Sentiment, &p.SentimentScore, &p.TrustLevel,
		&p.Embedding,
	)
	if err != nil {
		return nil, err
	}
	p.EntityType = entityType.String
	p.DisplayName = displayName.String
	p.Summary = summary.String
	p.PersonalityNotes = personalityNotes.String
	if interestsJSON.Valid && interestsJSON.String != "" {
		if err := json.Unmarshal([]byte(interestsJSON.String), &p.Interests); err != nil {
			return nil, fmt.Errorf("unmarshal entity %d interests: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanEntityRow(row *sql.Row) (*types.EntityProfile, error) {
	p, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get entity: %w", err)
	}
	return p, nil
}
