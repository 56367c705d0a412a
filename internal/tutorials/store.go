package tutorials

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fixloop/fixloop/internal/db"
)

// Store persists the tutorial corpus in SQLite.
type Store struct {
	db *db.DB
}

// NewStore creates a tutorial store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert inserts or replaces a tutorial row.
func (s *Store) Upsert(ctx context.Context, t Tutorial) error {
	keywords, err := json.Marshal(t.Keywords)
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	causes, err := json.Marshal(t.CauseTags)
	if err != nil {
		return fmt.Errorf("encoding cause tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tutorials (id, category, title, content, keywords, cause_tags, difficulty, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			content = excluded.content,
			keywords = excluded.keywords,
			cause_tags = excluded.cause_tags,
			difficulty = excluded.difficulty,
			source = excluded.source`,
		t.ID, t.Category, t.Title, t.Content, string(keywords), string(causes), t.Difficulty, t.Source)
	if err != nil {
		return fmt.Errorf("upserting tutorial %s: %w", t.ID, err)
	}
	return nil
}

// Get returns one tutorial by id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Tutorial, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, title, content, keywords, cause_tags, difficulty, source, created_at
		FROM tutorials WHERE id = ?`, id)

	t, err := scanTutorial(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading tutorial %s: %w", id, err)
	}
	return &t, nil
}

// ByCategory returns all tutorials in a category, ordered by id.
func (s *Store) ByCategory(ctx context.Context, category string) ([]Tutorial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, title, content, keywords, cause_tags, difficulty, source, created_at
		FROM tutorials WHERE category = ? ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("querying tutorials: %w", err)
	}
	defer rows.Close()

	var out []Tutorial
	for rows.Next() {
		t, err := scanTutorial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteByCategory removes every tutorial in a category. Used before
// re-ingesting a corpus file so stale entries do not linger.
func (s *Store) DeleteByCategory(ctx context.Context, category string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tutorials WHERE category = ?`, category)
	if err != nil {
		return fmt.Errorf("deleting tutorials in %s: %w", category, err)
	}
	return nil
}

// Count returns the number of stored tutorials.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tutorials`).Scan(&n)
	return n, err
}

// KeywordSearch scores every tutorial in the category by keyword overlap with
// the query tokens and returns the non-zero matches, best first. Ties break
// on tutorial id so rankings are stable.
func (s *Store) KeywordSearch(ctx context.Context, category string, queryTokens []string, limit int) ([]KeywordMatch, error) {
	all, err := s.ByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	var matches []KeywordMatch
	for _, t := range all {
		score := Jaccard(queryTokens, t.Keywords)
		if score > 0 {
			matches = append(matches, KeywordMatch{Tutorial: t, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Tutorial.ID < matches[j].Tutorial.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTutorial(row rowScanner) (Tutorial, error) {
	var t Tutorial
	var keywordsJSON, causesJSON string
	err := row.Scan(&t.ID, &t.Category, &t.Title, &t.Content, &keywordsJSON, &causesJSON, &t.Difficulty, &t.Source, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &t.Keywords); err != nil {
		return t, fmt.Errorf("decoding keywords for %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(causesJSON), &t.CauseTags); err != nil {
		return t, fmt.Errorf("decoding cause tags for %s: %w", t.ID, err)
	}
	return t, nil
}
