package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fixloop/fixloop/internal/belief"
	"github.com/fixloop/fixloop/internal/embeddings"
	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/retrieval"
	"github.com/fixloop/fixloop/internal/selector"
)

// Config holds the session loop thresholds.
type Config struct {
	// Alpha is the seed/learned mixing weight for belief initialization.
	Alpha float64
	// ConfidenceThreshold ends questioning once the top cause reaches it.
	ConfidenceThreshold float64
	// MaxQuestions is the question budget per session.
	MaxQuestions int
	// Selector carries the question-filter thresholds.
	Selector selector.Config
	// TutorialLimit is how many tutorials a finished session recommends.
	TutorialLimit int
}

// DefaultConfig returns the standard session thresholds.
func DefaultConfig() Config {
	return Config{
		Alpha:               0.7,
		ConfidenceThreshold: 0.70,
		MaxQuestions:        5,
		Selector: selector.Config{
			FactConfidence: 0.8,
			CauseFloor:     0.1,
			MinGain:        0.05,
		},
		TutorialLimit: 3,
	}
}

// Recommender is the slice of the retrieval ranker the controller needs.
type Recommender interface {
	Recommend(ctx context.Context, category, query string, limit int) ([]retrieval.Recommendation, error)
}

// StartInput is the first turn of a session. Symptoms may be supplied
// directly (CLI, tests); when an analyzer is configured, Text and ImageRef
// are additionally run through it and the results merged in.
type StartInput struct {
	Category   string
	Text       string
	ImageRef   string
	Symptoms   []knowledge.Symptom
	KnownFacts map[string]float64
}

// AnswerInput is one answer turn. DerivedSymptoms carries symptom tags
// extracted externally from a free-text elaboration; they enrich the
// session's symptom set for learning and retrieval but do not re-run
// initialization.
type AnswerInput struct {
	SessionID       string
	QuestionID      string
	Answer          knowledge.Answer
	DerivedSymptoms []knowledge.Symptom
}

// Turn is what the caller sees after each exchange: either the next
// question, or (in a terminal state) the diagnosis and its tutorials.
// LowConfidence marks an uncertain result so it is never presented as a
// confident diagnosis.
type Turn struct {
	SessionID     string                     `json:"session_id"`
	Status        Status                     `json:"status"`
	Belief        belief.Vector              `json:"belief"`
	NextQuestion  *knowledge.Question        `json:"next_question,omitempty"`
	FinalCause    knowledge.Cause            `json:"final_cause,omitempty"`
	Confidence    float64                    `json:"confidence"`
	LowConfidence bool                       `json:"low_confidence,omitempty"`
	Tutorials     []retrieval.Recommendation `json:"tutorials,omitempty"`
}

// Library provides the immutable knowledge snapshot for a turn.
type Library interface {
	Snapshot() *knowledge.Snapshot
}

// Controller orchestrates diagnostic sessions. Each session is sequential;
// distinct sessions may run concurrently and share nothing but the store
// and the immutable knowledge snapshot.
type Controller struct {
	cfg         Config
	library     Library
	store       *Store
	stats       selector.Stats
	recommender Recommender
	analyzer    embeddings.Analyzer
}

// NewController wires the session loop. analyzer may be nil, in which case
// symptoms must arrive pre-extracted in StartInput.
func NewController(cfg Config, library Library, store *Store, stats selector.Stats, recommender Recommender, analyzer embeddings.Analyzer) *Controller {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = DefaultConfig().MaxQuestions
	}
	if cfg.TutorialLimit <= 0 {
		cfg.TutorialLimit = DefaultConfig().TutorialLimit
	}
	return &Controller{
		cfg:         cfg,
		library:     library,
		store:       store,
		stats:       stats,
		recommender: recommender,
		analyzer:    analyzer,
	}
}

// Start creates a session, initializes its belief vector, and either asks
// the first question or finishes immediately when the prior is already
// confident enough. An analyzer failure aborts the start: the core never
// substitutes fabricated symptoms for a failed analysis.
func (c *Controller) Start(ctx context.Context, in StartInput) (*Turn, error) {
	snap := c.library.Snapshot()
	if !snap.HasCategory(in.Category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, in.Category)
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Category:   in.Category,
		InputText:  in.Text,
		Symptoms:   append([]knowledge.Symptom(nil), in.Symptoms...),
		KnownFacts: make(map[string]float64, len(in.KnownFacts)),
		Status:     StatusQuestioning,
	}
	for k, v := range in.KnownFacts {
		sess.KnownFacts[k] = v
	}

	if c.analyzer != nil && (in.Text != "" || in.ImageRef != "") {
		analysis, err := c.analyzer.Analyze(ctx, in.Text, in.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
		sess.Symptoms = append(sess.Symptoms, analysis.AllSymptoms()...)
		sess.ImageCaption = analysis.Caption
		for k, v := range analysis.KnownFacts {
			if v > sess.KnownFacts[k] {
				sess.KnownFacts[k] = v
			}
		}
	}
	sess.Symptoms = dedupeSymptoms(sess.Symptoms)

	sess.Belief = belief.Initialize(snap, sess.Category, sess.Symptoms, c.cfg.Alpha)

	if err := c.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := c.store.AppendSnapshot(ctx, sess.ID, sess.Belief, EventInitialized); err != nil {
		return nil, err
	}

	return c.advance(ctx, snap, sess)
}

// Answer applies one answer to the outstanding question and advances the
// state machine.
func (c *Controller) Answer(ctx context.Context, in AnswerInput) (*Turn, error) {
	if !knowledge.ValidAnswer(in.Answer) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnswer, in.Answer)
	}

	sess, err := c.store.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, ErrFinished
	}

	outstanding, err := c.store.Outstanding(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if outstanding == nil || outstanding.QuestionID != in.QuestionID {
		return nil, ErrQuestionMismatch
	}

	snap := c.library.Snapshot()
	q, ok := snap.Question(in.QuestionID)
	if !ok {
		return nil, fmt.Errorf("%w: question %s no longer in knowledge base", ErrQuestionMismatch, in.QuestionID)
	}

	before := sess.Belief
	updated, noop := belief.Update(before, q, in.Answer)
	if noop {
		log.Printf("session %s: degenerate update from question %s, keeping prior belief", sess.ID, q.ID)
	}

	change := make(map[string]float64, len(updated))
	for cause, p := range updated {
		change[string(cause)] = p - before[cause]
	}
	if err := c.store.RecordAnswer(ctx, outstanding.ID, in.Answer, updated.Entropy(), change); err != nil {
		return nil, err
	}

	sess.Belief = updated
	sess.AskedQuestions = append(sess.AskedQuestions, q.ID)
	if len(in.DerivedSymptoms) > 0 {
		sess.Symptoms = dedupeSymptoms(append(sess.Symptoms, in.DerivedSymptoms...))
	}
	if err := c.store.AppendSnapshot(ctx, sess.ID, sess.Belief, EventAnswered); err != nil {
		return nil, err
	}

	return c.advance(ctx, snap, sess)
}

// Get returns a session with its audit log and question turns.
func (c *Controller) Get(ctx context.Context, id string) (*Session, []Snapshot, []Interaction, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	snaps, err := c.store.Snapshots(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	turns, err := c.store.Interactions(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return sess, snaps, turns, nil
}

// advance decides the next transition: finish on confidence, finish on an
// exhausted budget or selector, or ask the next question.
func (c *Controller) advance(ctx context.Context, snap *knowledge.Snapshot, sess *Session) (*Turn, error) {
	if sess.Belief.Confidence() >= c.cfg.ConfidenceThreshold {
		return c.finish(ctx, sess, StatusComplete, EventConfidenceReached)
	}
	if len(sess.AskedQuestions) >= c.cfg.MaxQuestions {
		return c.finish(ctx, sess, StatusUncertain, EventBudgetExhausted)
	}

	asked := make(map[string]bool, len(sess.AskedQuestions))
	for _, id := range sess.AskedQuestions {
		asked[id] = true
	}
	res := selector.SelectNext(sess.Belief, asked, sess.KnownFacts, snap.Questions(sess.Category), c.stats, c.cfg.Selector)
	if res.Question == nil {
		return c.finish(ctx, sess, StatusUncertain, EventSelectionExhausted)
	}

	if err := c.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	if _, err := c.store.RecordAsked(ctx, sess.ID, *res.Question, sess.Belief.Entropy()); err != nil {
		return nil, err
	}

	return &Turn{
		SessionID:    sess.ID,
		Status:       sess.Status,
		Belief:       sess.Belief,
		NextQuestion: res.Question,
		Confidence:   sess.Belief.Confidence(),
	}, nil
}

// finish moves the session into a terminal state and attaches tutorials.
// An uncertain session still reports its best-available cause, explicitly
// marked low-confidence.
func (c *Controller) finish(ctx context.Context, sess *Session, status Status, event string) (*Turn, error) {
	cause, conf := sess.Belief.Top()
	now := time.Now().UTC()
	sess.Status = status
	sess.FinalCause = cause
	sess.FinalConf = conf
	sess.CompletedAt = &now

	if err := c.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := c.store.AppendSnapshot(ctx, sess.ID, sess.Belief, event); err != nil {
		return nil, err
	}

	turn := &Turn{
		SessionID:     sess.ID,
		Status:        status,
		Belief:        sess.Belief,
		FinalCause:    cause,
		Confidence:    conf,
		LowConfidence: status == StatusUncertain,
	}

	// The terminal state is already committed; a retrieval failure must
	// not turn the finished diagnosis into an error the caller cannot
	// recover from. The turn simply carries no tutorials.
	if c.recommender != nil {
		query := retrieval.BuildQuery(sess.InputText, symptomStrings(append(sess.Symptoms, knowledge.Symptom(cause))))
		recs, err := c.recommender.Recommend(ctx, sess.Category, query, c.cfg.TutorialLimit)
		if err != nil {
			log.Printf("session %s: tutorial recommendation failed: %v", sess.ID, err)
		} else {
			turn.Tutorials = recs
		}
	}
	return turn, nil
}

func dedupeSymptoms(symptoms []knowledge.Symptom) []knowledge.Symptom {
	seen := make(map[knowledge.Symptom]bool, len(symptoms))
	out := symptoms[:0]
	for _, s := range symptoms {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func symptomStrings(symptoms []knowledge.Symptom) []string {
	out := make([]string, len(symptoms))
	for i, s := range symptoms {
		out[i] = string(s)
	}
	return out
}
