package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramlabs/engram/internal/storage"
)

// FTS5 operators and punctuation that would otherwise be parsed as query
// syntax. Each is replaced with a space before tokenizing.
var ftsSanitizer = strings.NewReplacer(
	`"`, " ", `'`, " ", "-", " ", "+", " ", "*", " ",
	"(", " ", ")", " ", "{", " ", "}", " ", "^", " ",
	"[", " ", "]", " ", ":", " ", "~", " ", "@", " ",
	"!", " ", "&", " ", "|", " ",
)

// sanitizeFTSQuery turns free text into a safe FTS5 MATCH expression:
// reserved characters are stripped, each remaining token is quoted and
// given a prefix wildcard, and tokens are OR-joined. Returns "" when no
// usable token remains.
func sanitizeFTSQuery(query string) string {
	cleaned := ftsSanitizer.Replace(query)
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " OR ")
}

// FTSSearch runs a sanitized full-text query over node content. Rank is
// negated BM25, so higher is better. A query with no usable tokens
// returns an empty result.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]storage.FTSMatch, error) {
	if limit < 1 {
		limit = 20
	}
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, -rank
		FROM knowledge_fts
		WHERE knowledge_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fts search: %w", err)
	}
	defer rows.Close()

	var matches []storage.FTSMatch
	for rows.Next() {
		var m storage.FTSMatch
		if err := rows.Scan(&m.NodeID, &m.Rank); err != nil {
			return nil, fmt.Errorf("sqlite: scan fts match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate fts matches: %w", err)
	}
	return matches, nil
}
