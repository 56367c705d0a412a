package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fixloop/fixloop/internal/belief"
	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/knowledge"
)

// Store persists sessions, their audit snapshots, and question interactions.
type Store struct {
	db *db.DB
}

// NewStore creates a session store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	symptoms, err := json.Marshal(sess.Symptoms)
	if err != nil {
		return fmt.Errorf("encoding symptoms: %w", err)
	}
	facts, err := json.Marshal(sess.KnownFacts)
	if err != nil {
		return fmt.Errorf("encoding known facts: %w", err)
	}
	beliefJSON, err := json.Marshal(sess.Belief)
	if err != nil {
		return fmt.Errorf("encoding belief: %w", err)
	}
	asked, err := json.Marshal(sess.AskedQuestions)
	if err != nil {
		return fmt.Errorf("encoding asked questions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, category, input_text, image_caption, symptoms, known_facts, status, belief, asked_questions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Category, sess.InputText, sess.ImageCaption,
		string(symptoms), string(facts), string(sess.Status), string(beliefJSON), string(asked))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, input_text, image_caption, symptoms, known_facts, status,
		       belief, asked_questions, final_cause, final_confidence, resolution_outcome,
		       created_at, completed_at
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var symptomsJSON, factsJSON, beliefJSON, askedJSON string
	var finalCause sql.NullString
	var finalConf sql.NullFloat64
	var resolution sql.NullBool
	var completedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.Category, &sess.InputText, &sess.ImageCaption,
		&symptomsJSON, &factsJSON, &sess.Status,
		&beliefJSON, &askedJSON, &finalCause, &finalConf, &resolution,
		&sess.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	if err := decodeSessionJSON(&sess, symptomsJSON, factsJSON, beliefJSON, askedJSON); err != nil {
		return nil, err
	}
	if finalCause.Valid {
		sess.FinalCause = knowledge.Cause(finalCause.String)
	}
	if finalConf.Valid {
		sess.FinalConf = finalConf.Float64
	}
	if resolution.Valid {
		b := resolution.Bool
		sess.Resolution = &b
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

// Update persists a session's mutable fields after a turn.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	symptoms, err := json.Marshal(sess.Symptoms)
	if err != nil {
		return fmt.Errorf("encoding symptoms: %w", err)
	}
	beliefJSON, err := json.Marshal(sess.Belief)
	if err != nil {
		return fmt.Errorf("encoding belief: %w", err)
	}
	asked, err := json.Marshal(sess.AskedQuestions)
	if err != nil {
		return fmt.Errorf("encoding asked questions: %w", err)
	}

	var finalCause sql.NullString
	var finalConf sql.NullFloat64
	var completedAt sql.NullTime
	if sess.FinalCause != "" {
		finalCause = sql.NullString{String: string(sess.FinalCause), Valid: true}
		finalConf = sql.NullFloat64{Float64: sess.FinalConf, Valid: true}
	}
	if sess.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *sess.CompletedAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET symptoms = ?, status = ?, belief = ?, asked_questions = ?,
		    final_cause = ?, final_confidence = ?, completed_at = ?
		WHERE id = ?`,
		string(symptoms), string(sess.Status), string(beliefJSON), string(asked),
		finalCause, finalConf, completedAt, sess.ID)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResolution annotates a finished session with its real-world outcome.
func (s *Store) SetResolution(ctx context.Context, id string, solved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET resolution_outcome = ? WHERE id = ?`, solved, id)
	if err != nil {
		return fmt.Errorf("setting resolution for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSnapshot adds the next audit-log entry for a session. Sequence
// numbers are assigned in insertion order, starting at 0.
func (s *Store) AppendSnapshot(ctx context.Context, sessionID string, v belief.Vector, event string) error {
	beliefJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding snapshot belief: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO belief_snapshots (session_id, seq, belief, trigger_event)
		VALUES (?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM belief_snapshots WHERE session_id = ?), ?, ?)`,
		sessionID, sessionID, string(beliefJSON), event)
	if err != nil {
		return fmt.Errorf("appending snapshot: %w", err)
	}
	return nil
}

// Snapshots returns a session's audit log in sequence order.
func (s *Store) Snapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, belief, trigger_event, created_at
		FROM belief_snapshots
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var beliefJSON string
		if err := rows.Scan(&snap.SessionID, &snap.Seq, &beliefJSON, &snap.TriggerEvent, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(beliefJSON), &snap.Belief); err != nil {
			return nil, fmt.Errorf("decoding snapshot belief: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// RecordAsked logs that a question was put to the user. Returns the
// interaction id used to record the answer later.
func (s *Store) RecordAsked(ctx context.Context, sessionID string, q knowledge.Question, entropyBefore float64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO question_interactions (id, session_id, question_id, question_text, entropy_before)
		VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, q.ID, q.Text, entropyBefore)
	if err != nil {
		return "", fmt.Errorf("recording asked question: %w", err)
	}
	return id, nil
}

// RecordAnswer completes an interaction with the answer and its effect.
func (s *Store) RecordAnswer(ctx context.Context, interactionID string, answer knowledge.Answer, entropyAfter float64, beliefChange map[string]float64) error {
	change, err := json.Marshal(beliefChange)
	if err != nil {
		return fmt.Errorf("encoding belief change: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE question_interactions
		SET answer = ?, entropy_after = ?, belief_change = ?, answered_at = ?
		WHERE id = ?`,
		string(answer), entropyAfter, string(change), time.Now().UTC(), interactionID)
	if err != nil {
		return fmt.Errorf("recording answer: %w", err)
	}
	return nil
}

// Outstanding returns the session's unanswered interaction, or nil when
// every asked question has been answered.
func (s *Store) Outstanding(ctx context.Context, sessionID string) (*Interaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, question_id, question_text, entropy_before, asked_at
		FROM question_interactions
		WHERE session_id = ? AND answer IS NULL
		ORDER BY asked_at DESC, id LIMIT 1`, sessionID)

	var in Interaction
	err := row.Scan(&in.ID, &in.SessionID, &in.QuestionID, &in.QuestionText, &in.EntropyBefore, &in.AskedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading outstanding interaction: %w", err)
	}
	return &in, nil
}

// Interactions returns a session's question turns in asked order.
func (s *Store) Interactions(ctx context.Context, sessionID string) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, question_id, question_text, answer, entropy_before, entropy_after, belief_change, asked_at, answered_at
		FROM question_interactions
		WHERE session_id = ?
		ORDER BY asked_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// WithOutcome returns terminal sessions created since the cutoff that have a
// recorded resolution outcome. This is the learning engine's input scan.
func (s *Store) WithOutcome(ctx context.Context, since time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, input_text, image_caption, symptoms, known_facts, status,
		       belief, asked_questions, final_cause, final_confidence, resolution_outcome,
		       created_at, completed_at
		FROM sessions
		WHERE status IN ('complete', 'uncertain')
		  AND resolution_outcome IS NOT NULL
		  AND created_at >= ?
		ORDER BY created_at, id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying sessions with outcome: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var symptomsJSON, factsJSON, beliefJSON, askedJSON string
		var finalCause sql.NullString
		var finalConf sql.NullFloat64
		var resolution sql.NullBool
		var completedAt sql.NullTime
		err := rows.Scan(&sess.ID, &sess.Category, &sess.InputText, &sess.ImageCaption,
			&symptomsJSON, &factsJSON, &sess.Status,
			&beliefJSON, &askedJSON, &finalCause, &finalConf, &resolution,
			&sess.CreatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if err := decodeSessionJSON(&sess, symptomsJSON, factsJSON, beliefJSON, askedJSON); err != nil {
			return nil, err
		}
		if finalCause.Valid {
			sess.FinalCause = knowledge.Cause(finalCause.String)
		}
		if finalConf.Valid {
			sess.FinalConf = finalConf.Float64
		}
		if resolution.Valid {
			b := resolution.Bool
			sess.Resolution = &b
		}
		if completedAt.Valid {
			t := completedAt.Time
			sess.CompletedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func decodeSessionJSON(sess *Session, symptomsJSON, factsJSON, beliefJSON, askedJSON string) error {
	if err := json.Unmarshal([]byte(symptomsJSON), &sess.Symptoms); err != nil {
		return fmt.Errorf("decoding symptoms for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(factsJSON), &sess.KnownFacts); err != nil {
		return fmt.Errorf("decoding known facts for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(beliefJSON), &sess.Belief); err != nil {
		return fmt.Errorf("decoding belief for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(askedJSON), &sess.AskedQuestions); err != nil {
		return fmt.Errorf("decoding asked questions for %s: %w", sess.ID, err)
	}
	return nil
}

func scanInteraction(rows *sql.Rows) (Interaction, error) {
	var in Interaction
	var answer sql.NullString
	var entropyAfter sql.NullFloat64
	var change sql.NullString
	var answeredAt sql.NullTime
	err := rows.Scan(&in.ID, &in.SessionID, &in.QuestionID, &in.QuestionText,
		&answer, &in.EntropyBefore, &entropyAfter, &change, &in.AskedAt, &answeredAt)
	if err != nil {
		return in, fmt.Errorf("scanning interaction: %w", err)
	}
	if answer.Valid {
		a := knowledge.Answer(answer.String)
		in.Answer = &a
	}
	if entropyAfter.Valid {
		e := entropyAfter.Float64
		in.EntropyAfter = &e
	}
	if change.Valid && change.String != "" {
		if err := json.Unmarshal([]byte(change.String), &in.BeliefChange); err != nil {
			return in, fmt.Errorf("decoding belief change: %w", err)
		}
	}
	if answeredAt.Valid {
		t := answeredAt.Time
		in.AnsweredAt = &t
	}
	return in, nil
}
