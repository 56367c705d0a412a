package knowledge

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Snapshot is an immutable view of the knowledge base: the cause catalogs,
// and the seed plus approved learned patterns and questions per category.
// Sessions read one snapshot for their whole lifetime; a learning export
// builds a new snapshot and swaps it in atomically.
type Snapshot struct {
	causes    map[string][]Cause
	patterns  map[string][]Pattern
	questions map[string][]Question
}

// Causes returns the cause catalog for a category.
func (s *Snapshot) Causes(category string) []Cause {
	return s.causes[category]
}

// Patterns returns all patterns for a category, seed first, then learned in
// insertion order.
func (s *Snapshot) Patterns(category string) []Pattern {
	return s.patterns[category]
}

// Questions returns all candidate questions for a category, seed first. The
// slice order is the deterministic tie-break order used by the selector.
func (s *Snapshot) Questions(category string) []Question {
	return s.questions[category]
}

// Question looks up a question by id across all categories.
func (s *Snapshot) Question(id string) (Question, bool) {
	for _, qs := range s.questions {
		for _, q := range qs {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// HasCategory reports whether the snapshot knows the given category.
func (s *Snapshot) HasCategory(category string) bool {
	_, ok := s.causes[category]
	return ok
}

// NewSnapshot assembles an immutable snapshot from a seed plus learned
// records. Exposed for callers that build snapshots without a Library
// (tests, offline tools).
func NewSnapshot(seed *Seed, learnedPatterns []Pattern, learnedQuestions []Question) *Snapshot {
	snap := &Snapshot{
		causes:    make(map[string][]Cause, len(seed.Causes)),
		patterns:  make(map[string][]Pattern),
		questions: make(map[string][]Question),
	}
	for category, causes := range seed.Causes {
		snap.causes[category] = append([]Cause(nil), causes...)
	}
	for _, p := range seed.Patterns {
		snap.patterns[p.Category] = append(snap.patterns[p.Category], p)
	}
	for _, p := range learnedPatterns {
		snap.patterns[p.Category] = append(snap.patterns[p.Category], p)
	}
	for _, q := range seed.Questions {
		snap.questions[q.Category] = append(snap.questions[q.Category], q)
	}
	for _, q := range learnedQuestions {
		snap.questions[q.Category] = append(snap.questions[q.Category], q)
	}
	return snap
}

// Library owns the current knowledge snapshot. Reads never block and never
// observe a partially built snapshot; Rebuild replaces the whole snapshot in
// one atomic swap.
type Library struct {
	seed    *Seed
	store   *Store
	current atomic.Pointer[Snapshot]
}

// NewLibrary builds a library from the seed and the learned-record store and
// loads the initial snapshot.
func NewLibrary(ctx context.Context, seed *Seed, store *Store) (*Library, error) {
	l := &Library{seed: seed, store: store}
	if err := l.Rebuild(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Snapshot returns the current immutable snapshot.
func (l *Library) Snapshot() *Snapshot {
	return l.current.Load()
}

// Rebuild constructs a fresh snapshot from the seed and the approved learned
// records, then swaps it in.
func (l *Library) Rebuild(ctx context.Context) error {
	patterns, err := l.store.ApprovedPatterns(ctx)
	if err != nil {
		return fmt.Errorf("loading approved patterns: %w", err)
	}
	questions, err := l.store.ApprovedQuestions(ctx)
	if err != nil {
		return fmt.Errorf("loading approved questions: %w", err)
	}
	// Drop learned questions the effectiveness audit flagged as low value.
	flagged, err := l.store.LowValueQuestionIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading low-value flags: %w", err)
	}
	if len(flagged) > 0 {
		kept := questions[:0]
		for _, q := range questions {
			if !flagged[q.ID] {
				kept = append(kept, q)
			}
		}
		questions = kept
	}
	l.current.Store(NewSnapshot(l.seed, patterns, questions))
	return nil
}
