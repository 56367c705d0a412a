// Package feedback records whether recommended tutorials actually solved
// problems, and aggregates that history into per-tutorial scores the
// retrieval ranker folds into its ordering.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fixloop/fixloop/internal/db"
)

// Feedback is one user's verdict on one recommended tutorial.
type Feedback struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	TutorialID string    `json:"tutorial_id"`
	Solved     bool      `json:"solved"`
	Rating     *float64  `json:"rating,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists tutorial feedback in SQLite.
type Store struct {
	db *db.DB
}

// NewStore creates a feedback store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record stores one feedback entry. A generated id is assigned when empty.
func (s *Store) Record(ctx context.Context, fb Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	var rating sql.NullFloat64
	if fb.Rating != nil {
		rating = sql.NullFloat64{Float64: *fb.Rating, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tutorial_feedback (id, session_id, tutorial_id, solved, rating)
		VALUES (?, ?, ?, ?, ?)`,
		fb.ID, fb.SessionID, fb.TutorialID, fb.Solved, rating)
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	return nil
}

// Score returns the aggregate feedback score for one tutorial in [-1, 1].
// Each solved verdict counts +1 and each unsolved verdict -1; their mean is
// the solved score. When numeric ratings exist the score is the mean of the
// solved score and the average rating mapped onto the same scale, so a
// well-rated tutorial recovers some ground even when it did not solve every
// problem. Tutorials with no feedback score a neutral 0.
func (s *Store) Score(ctx context.Context, tutorialID string) (float64, error) {
	var net, total float64
	var avgRating sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN solved = 1 THEN 1 ELSE -1 END), 0), COUNT(*), AVG(rating)
		FROM tutorial_feedback
		WHERE tutorial_id = ?`, tutorialID).Scan(&net, &total, &avgRating)
	if err != nil {
		return 0, fmt.Errorf("scoring tutorial %s: %w", tutorialID, err)
	}
	if total == 0 {
		return 0, nil
	}
	return combine(net/total, avgRating), nil
}

// Scores returns aggregate scores for every tutorial that has feedback,
// blended the same way Score blends. Tutorials absent from the map have no
// feedback and score 0.
func (s *Store) Scores(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tutorial_id,
		       CAST(SUM(CASE WHEN solved = 1 THEN 1 ELSE -1 END) AS REAL) / COUNT(*),
		       AVG(rating)
		FROM tutorial_feedback
		GROUP BY tutorial_id`)
	if err != nil {
		return nil, fmt.Errorf("querying feedback scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var id string
		var solvedScore float64
		var avgRating sql.NullFloat64
		if err := rows.Scan(&id, &solvedScore, &avgRating); err != nil {
			return nil, fmt.Errorf("scanning feedback score: %w", err)
		}
		scores[id] = combine(solvedScore, avgRating)
	}
	return scores, rows.Err()
}

// combine folds an average star rating into the solved score. Ratings are
// on a 1-5 scale; 3 is neutral. Without ratings the solved score stands
// alone.
func combine(solvedScore float64, avgRating sql.NullFloat64) float64 {
	if !avgRating.Valid {
		return solvedScore
	}
	r := (avgRating.Float64 - 3) / 2
	if r < -1 {
		r = -1
	}
	if r > 1 {
		r = 1
	}
	return (solvedScore + r) / 2
}

// BySession lists feedback recorded for one session, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tutorial_id, solved, rating, created_at
		FROM tutorial_feedback
		WHERE session_id = ?
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var rating sql.NullFloat64
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.TutorialID, &fb.Solved, &rating, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		if rating.Valid {
			r := rating.Float64
			fb.Rating = &r
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
