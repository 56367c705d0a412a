package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fixloop/fixloop/internal/db"
)

// ErrCandidateNotFound is returned when an approval targets an unknown or
// already-reviewed candidate.
var ErrCandidateNotFound = errors.New("candidate not found")

// PatternCandidate is an aggregate discovered by the learning engine,
// awaiting human approval before it becomes a learned Pattern.
type PatternCandidate struct {
	ID                 string    `json:"id"`
	Category           string    `json:"category"`
	Symptoms           []Symptom `json:"symptoms"`
	Cause              Cause     `json:"cause"`
	ObservedCount      int       `json:"observed_count"`
	SuccessCount       int       `json:"success_count"`
	Confidence         float64   `json:"confidence"`
	SupportingSessions []string  `json:"supporting_sessions"`
	Status             string    `json:"status"`
}

// SuccessRate returns successes over observations.
func (c PatternCandidate) SuccessRate() float64 {
	if c.ObservedCount == 0 {
		return 0
	}
	return float64(c.SuccessCount) / float64(c.ObservedCount)
}

// QuestionCandidate is a generated question awaiting approval.
type QuestionCandidate struct {
	ID              string            `json:"id"`
	Category        string            `json:"category"`
	BasedOnQuestion string            `json:"based_on_question"`
	Text            string            `json:"text"`
	AffectedCauses  []Cause           `json:"affected_causes"`
	YesUpdates      map[Cause]float64 `json:"yes_updates,omitempty"`
	NoUpdates       map[Cause]float64 `json:"no_updates,omitempty"`
	ObservedCount   int               `json:"observed_count"`
	AvgGain         float64           `json:"avg_gain"`
	Status          string            `json:"status"`
}

// Store persists learned patterns, learned questions, and their candidates.
// The learning engine is the only writer; sessions read through Library
// snapshots, never directly.
type Store struct {
	db *db.DB
}

// NewStore creates a knowledge store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ApprovedPatterns returns all approved learned patterns across categories.
func (s *Store) ApprovedPatterns(ctx context.Context) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, symptoms, cause, support_count, success_rate, confidence
		FROM learned_patterns
		WHERE approved = 1
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying learned patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var p Pattern
		var symptomsJSON string
		if err := rows.Scan(&p.ID, &p.Category, &symptomsJSON, &p.Cause, &p.SupportCount, &p.SuccessRate, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(symptomsJSON), &p.Symptoms); err != nil {
			return nil, fmt.Errorf("decoding symptoms for pattern %s: %w", p.ID, err)
		}
		p.Origin = OriginLearned
		p.Approved = true
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// ApprovedQuestions returns all approved learned questions across categories.
func (s *Store) ApprovedQuestions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, text, affected_causes, yes_updates, no_updates, info_gain_estimate, cost_level
		FROM learned_questions
		WHERE approved = 1
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying learned questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var causesJSON, yesJSON, noJSON string
		if err := rows.Scan(&q.ID, &q.Category, &q.Text, &causesJSON, &yesJSON, &noJSON, &q.InfoGainEstimate, &q.CostLevel); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		if err := json.Unmarshal([]byte(causesJSON), &q.AffectedCauses); err != nil {
			return nil, fmt.Errorf("decoding affected causes for question %s: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(yesJSON), &q.YesUpdates); err != nil {
			return nil, fmt.Errorf("decoding yes updates for question %s: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(noJSON), &q.NoUpdates); err != nil {
			return nil, fmt.Errorf("decoding no updates for question %s: %w", q.ID, err)
		}
		q.Origin = OriginLearned
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// LowValueQuestionIDs returns the ids of questions flagged by the
// effectiveness audit. Flagged questions leave the active pool but keep
// their audit trail.
func (s *Store) LowValueQuestionIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id FROM question_stats WHERE low_value = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying low-value questions: %w", err)
	}
	defer rows.Close()

	flagged := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		flagged[id] = true
	}
	return flagged, rows.Err()
}

// FindPattern looks up a learned pattern by its grouping key. Returns nil
// when none exists.
func (s *Store) FindPattern(ctx context.Context, category, symptomKey string, cause Cause) (*Pattern, error) {
	var p Pattern
	var symptomsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, symptoms, cause, support_count, success_rate, confidence
		FROM learned_patterns
		WHERE category = ? AND symptom_key = ? AND cause = ?`,
		category, symptomKey, string(cause)).
		Scan(&p.ID, &p.Category, &symptomsJSON, &p.Cause, &p.SupportCount, &p.SuccessRate, &p.Confidence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(symptomsJSON), &p.Symptoms); err != nil {
		return nil, fmt.Errorf("decoding symptoms for pattern %s: %w", p.ID, err)
	}
	p.Origin = OriginLearned
	return &p, nil
}

// ReinforcePattern folds newly observed outcomes into an existing learned
// pattern: support counts add, success rates average, and confidence is
// re-derived (never set directly).
func (s *Store) ReinforcePattern(ctx context.Context, id string, addSupport int, newSuccessRate, n0 float64) error {
	var support int
	var rate float64
	err := s.db.QueryRowContext(ctx,
		`SELECT support_count, success_rate FROM learned_patterns WHERE id = ?`, id).
		Scan(&support, &rate)
	if err != nil {
		return fmt.Errorf("loading pattern %s: %w", id, err)
	}

	support += addSupport
	rate = (rate + newSuccessRate) / 2
	confidence := DerivedConfidence(support, rate, n0)

	_, err = s.db.ExecContext(ctx, `
		UPDATE learned_patterns
		SET support_count = ?, success_rate = ?, confidence = ?, updated_at = ?
		WHERE id = ?`,
		support, rate, confidence, time.Now().UTC().Format(time.DateTime), id)
	if err != nil {
		return fmt.Errorf("updating pattern %s: %w", id, err)
	}
	return nil
}

// InsertPatternCandidate stores a discovered candidate. A candidate with the
// same grouping key as an existing one is ignored; re-discovery of an
// already-pending pattern is expected across learning runs.
func (s *Store) InsertPatternCandidate(ctx context.Context, c PatternCandidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	symptoms, err := json.Marshal(c.Symptoms)
	if err != nil {
		return fmt.Errorf("encoding symptoms: %w", err)
	}
	sessions, err := json.Marshal(c.SupportingSessions)
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pattern_candidates
		(id, category, symptom_key, symptoms, cause, observed_count, success_count, confidence, supporting_sessions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, symptom_key, cause) DO UPDATE SET
			observed_count = excluded.observed_count,
			success_count = excluded.success_count,
			confidence = excluded.confidence,
			supporting_sessions = excluded.supporting_sessions
		WHERE pattern_candidates.status = 'pending'`,
		c.ID, c.Category, SymptomKey(c.Symptoms), string(symptoms), string(c.Cause),
		c.ObservedCount, c.SuccessCount, c.Confidence, string(sessions))
	if err != nil {
		return fmt.Errorf("inserting pattern candidate: %w", err)
	}
	return nil
}

// InsertQuestionCandidate stores a generated question candidate.
func (s *Store) InsertQuestionCandidate(ctx context.Context, c QuestionCandidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	causes, err := json.Marshal(c.AffectedCauses)
	if err != nil {
		return fmt.Errorf("encoding affected causes: %w", err)
	}
	yes, err := json.Marshal(c.YesUpdates)
	if err != nil {
		return fmt.Errorf("encoding yes updates: %w", err)
	}
	no, err := json.Marshal(c.NoUpdates)
	if err != nil {
		return fmt.Errorf("encoding no updates: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO question_candidates
		(id, category, based_on_question, text, affected_causes, yes_updates, no_updates, observed_count, avg_gain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Category, c.BasedOnQuestion, c.Text, string(causes), string(yes), string(no),
		c.ObservedCount, c.AvgGain)
	if err != nil {
		return fmt.Errorf("inserting question candidate: %w", err)
	}
	return nil
}

// PendingPatternCandidates lists candidates awaiting review.
func (s *Store) PendingPatternCandidates(ctx context.Context) ([]PatternCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, symptoms, cause, observed_count, success_count, confidence, supporting_sessions, status
		FROM pattern_candidates
		WHERE status = 'pending'
		ORDER BY confidence DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying pattern candidates: %w", err)
	}
	defer rows.Close()

	var candidates []PatternCandidate
	for rows.Next() {
		var c PatternCandidate
		var symptomsJSON, sessionsJSON string
		if err := rows.Scan(&c.ID, &c.Category, &symptomsJSON, &c.Cause, &c.ObservedCount, &c.SuccessCount, &c.Confidence, &sessionsJSON, &c.Status); err != nil {
			return nil, fmt.Errorf("scanning pattern candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(symptomsJSON), &c.Symptoms); err != nil {
			return nil, fmt.Errorf("decoding candidate %s symptoms: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(sessionsJSON), &c.SupportingSessions); err != nil {
			return nil, fmt.Errorf("decoding candidate %s sessions: %w", c.ID, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// PendingQuestionCandidates lists question candidates awaiting review.
func (s *Store) PendingQuestionCandidates(ctx context.Context) ([]QuestionCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, based_on_question, text, affected_causes, yes_updates, no_updates, observed_count, avg_gain, status
		FROM question_candidates
		WHERE status = 'pending'
		ORDER BY avg_gain DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying question candidates: %w", err)
	}
	defer rows.Close()

	var candidates []QuestionCandidate
	for rows.Next() {
		var c QuestionCandidate
		var causesJSON, yesJSON, noJSON string
		if err := rows.Scan(&c.ID, &c.Category, &c.BasedOnQuestion, &c.Text, &causesJSON, &yesJSON, &noJSON, &c.ObservedCount, &c.AvgGain, &c.Status); err != nil {
			return nil, fmt.Errorf("scanning question candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(causesJSON), &c.AffectedCauses); err != nil {
			return nil, fmt.Errorf("decoding candidate %s causes: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(yesJSON), &c.YesUpdates); err != nil {
			return nil, fmt.Errorf("decoding candidate %s yes updates: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(noJSON), &c.NoUpdates); err != nil {
			return nil, fmt.Errorf("decoding candidate %s no updates: %w", c.ID, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ApprovePatternCandidate promotes a pending candidate into an approved
// learned pattern. The caller is expected to rebuild the library snapshot
// afterwards so sessions can see it.
func (s *Store) ApprovePatternCandidate(ctx context.Context, id string, n0 float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning approval: %w", err)
	}
	defer tx.Rollback()

	var c PatternCandidate
	var symptomsJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT id, category, symptoms, cause, observed_count, success_count
		FROM pattern_candidates
		WHERE id = ? AND status = 'pending'`, id).
		Scan(&c.ID, &c.Category, &symptomsJSON, &c.Cause, &c.ObservedCount, &c.SuccessCount)
	if err == sql.ErrNoRows {
		return ErrCandidateNotFound
	}
	if err != nil {
		return fmt.Errorf("loading candidate: %w", err)
	}
	if err := json.Unmarshal([]byte(symptomsJSON), &c.Symptoms); err != nil {
		return fmt.Errorf("decoding candidate symptoms: %w", err)
	}

	rate := c.SuccessRate()
	confidence := DerivedConfidence(c.ObservedCount, rate, n0)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learned_patterns
		(id, category, symptom_key, symptoms, cause, support_count, success_rate, confidence, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(category, symptom_key, cause) DO UPDATE SET
			support_count = excluded.support_count,
			success_rate = excluded.success_rate,
			confidence = excluded.confidence,
			approved = 1,
			updated_at = datetime('now')`,
		uuid.NewString(), c.Category, SymptomKey(c.Symptoms), symptomsJSON, string(c.Cause),
		c.ObservedCount, rate, confidence)
	if err != nil {
		return fmt.Errorf("promoting candidate: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pattern_candidates SET status = 'approved' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("marking candidate approved: %w", err)
	}

	return tx.Commit()
}

// ApproveQuestionCandidate promotes a pending question candidate into an
// approved learned question.
func (s *Store) ApproveQuestionCandidate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning approval: %w", err)
	}
	defer tx.Rollback()

	var c QuestionCandidate
	var causesJSON, yesJSON, noJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT id, category, based_on_question, text, affected_causes, yes_updates, no_updates, observed_count, avg_gain
		FROM question_candidates
		WHERE id = ? AND status = 'pending'`, id).
		Scan(&c.ID, &c.Category, &c.BasedOnQuestion, &c.Text, &causesJSON, &yesJSON, &noJSON, &c.ObservedCount, &c.AvgGain)
	if err == sql.ErrNoRows {
		return ErrCandidateNotFound
	}
	if err != nil {
		return fmt.Errorf("loading candidate: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learned_questions
		(id, category, text, affected_causes, yes_updates, no_updates, info_gain_estimate, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		"lq_"+c.ID, c.Category, c.Text, causesJSON, yesJSON, noJSON, c.AvgGain)
	if err != nil {
		return fmt.Errorf("promoting candidate: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE question_candidates SET status = 'approved' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("marking candidate approved: %w", err)
	}

	return tx.Commit()
}
