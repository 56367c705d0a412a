// Package session runs one diagnostic conversation as a sequential state
// machine: initialize the belief vector, ask questions until confidence or
// the budget runs out, then hand the result to tutorial retrieval. Every
// transition is recorded as an immutable snapshot for audit and learning.
package session

import (
	"errors"
	"time"

	"github.com/fixloop/fixloop/internal/belief"
	"github.com/fixloop/fixloop/internal/knowledge"
)

// Status is a session's state-machine tag. There is no stored "init" state:
// initialization happens inside StartSession, which always leaves the session
// in one of these.
type Status string

const (
	StatusQuestioning Status = "questioning"
	StatusComplete    Status = "complete"
	StatusUncertain   Status = "uncertain"
)

// Terminal reports whether the status ends the questioning loop.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusUncertain
}

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrFinished is returned when answering a session that already
	// reached a terminal state.
	ErrFinished = errors.New("session already finished")
	// ErrUnknownCategory is returned when no cause catalog exists for the
	// requested category.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrQuestionMismatch is returned when an answer names a question other
	// than the one currently outstanding.
	ErrQuestionMismatch = errors.New("answer does not match the outstanding question")
	// ErrInvalidAnswer is returned for answers outside yes/no/uncertain.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrAnalysisFailed is returned when the external input analyzer is
	// unavailable. The session cannot proceed past initialization without
	// it; the caller should retry.
	ErrAnalysisFailed = errors.New("input analysis unavailable")
)

// Session is one diagnostic conversation. It is owned by a single caller;
// turns are strictly sequential.
type Session struct {
	ID             string              `json:"id"`
	Category       string              `json:"category"`
	InputText      string              `json:"input_text"`
	ImageCaption   string              `json:"image_caption,omitempty"`
	Symptoms       []knowledge.Symptom `json:"symptoms"`
	KnownFacts     map[string]float64  `json:"known_facts,omitempty"`
	Status         Status              `json:"status"`
	Belief         belief.Vector       `json:"belief"`
	AskedQuestions []string            `json:"asked_questions"`
	FinalCause     knowledge.Cause     `json:"final_cause,omitempty"`
	FinalConf      float64             `json:"final_confidence,omitempty"`
	Resolution     *bool               `json:"resolution_outcome,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Snapshot is one immutable entry of a session's audit log.
type Snapshot struct {
	SessionID    string        `json:"session_id"`
	Seq          int           `json:"seq"`
	Belief       belief.Vector `json:"belief"`
	TriggerEvent string        `json:"trigger_event"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Audit trigger events, one per transition kind.
const (
	EventInitialized        = "initialized"
	EventAnswered           = "answered"
	EventConfidenceReached  = "confidence_reached"
	EventBudgetExhausted    = "budget_exhausted"
	EventSelectionExhausted = "selection_exhausted"
)

// Interaction records one question turn: asked, then (usually) answered.
// Entropy before and after plus the per-cause belief change feed the
// learning engine's effectiveness and question-generation passes.
type Interaction struct {
	ID            string             `json:"id"`
	SessionID     string             `json:"session_id"`
	QuestionID    string             `json:"question_id"`
	QuestionText  string             `json:"question_text"`
	Answer        *knowledge.Answer  `json:"answer,omitempty"`
	EntropyBefore float64            `json:"entropy_before"`
	EntropyAfter  *float64           `json:"entropy_after,omitempty"`
	BeliefChange  map[string]float64 `json:"belief_change,omitempty"`
	AskedAt       time.Time          `json:"asked_at"`
	AnsweredAt    *time.Time         `json:"answered_at,omitempty"`
}
