// Package selector picks the next diagnostic question: it filters out
// already-asked, redundant, and irrelevant candidates, then maximizes the
// expected information gain of what remains.
package selector

import (
	"github.com/fixloop/fixloop/internal/belief"
	"github.com/fixloop/fixloop/internal/knowledge"
)

// Config holds the selection thresholds.
type Config struct {
	// FactConfidence is the confidence above which a known fact answers a
	// question for us (redundancy filter).
	FactConfidence float64
	// CauseFloor drops a question when none of its affected causes reaches
	// this probability (irrelevance filter).
	CauseFloor float64
	// MinGain drops questions whose estimated information gain is below
	// this floor.
	MinGain float64
}

// Stats supplies historical answer distributions for gain estimation.
// Implementations return ok=false when a question has no history, in which
// case the selector assumes a uniform yes/no split.
type Stats interface {
	AnswerDistribution(questionID string) (yes, no, uncertain float64, ok bool)
}

// SkipReason classifies why a candidate was filtered out.
type SkipReason string

const (
	SkipAsked      SkipReason = "already_asked"
	SkipRedundant  SkipReason = "redundant"
	SkipIrrelevant SkipReason = "irrelevant"
	SkipLowGain    SkipReason = "low_gain"
)

// Skipped records one filtered-out candidate, for effectiveness auditing.
type Skipped struct {
	QuestionID string
	Reason     SkipReason
}

// Result is the outcome of one selection pass. Question is nil when no
// candidate survived; that is the signal to stop questioning, not an
// error.
type Result struct {
	Question *knowledge.Question
	Gain     float64
	Skipped  []Skipped
}

const gainTieEps = 1e-9

// SelectNext applies the three filters in priority order, estimates the
// information gain of each survivor, and returns the best candidate.
// Ordering among equal gains is deterministic: higher authored gain
// estimate wins, then the cheaper question, then earlier insertion order.
func SelectNext(
	v belief.Vector,
	asked map[string]bool,
	knownFacts map[string]float64,
	candidates []knowledge.Question,
	stats Stats,
	cfg Config,
) Result {
	var res Result
	priorEntropy := v.Entropy()

	var best *knowledge.Question
	var bestGain float64

	for i := range candidates {
		q := &candidates[i]

		if asked[q.ID] {
			res.Skipped = append(res.Skipped, Skipped{q.ID, SkipAsked})
			continue
		}
		if factsAnswer(q, knownFacts, cfg.FactConfidence) {
			res.Skipped = append(res.Skipped, Skipped{q.ID, SkipRedundant})
			continue
		}
		if !relevant(q, v, cfg.CauseFloor) {
			res.Skipped = append(res.Skipped, Skipped{q.ID, SkipIrrelevant})
			continue
		}

		gain := expectedGain(v, priorEntropy, *q, stats)
		if gain < cfg.MinGain {
			res.Skipped = append(res.Skipped, Skipped{q.ID, SkipLowGain})
			continue
		}

		if best == nil || better(gain, *q, bestGain, *best) {
			best, bestGain = q, gain
		}
	}

	res.Question = best
	res.Gain = bestGain
	return res
}

// factsAnswer reports whether any fact the question probes is already known
// with sufficient confidence. The question-to-fact mapping is declared on
// the question record, not hardcoded per question.
func factsAnswer(q *knowledge.Question, known map[string]float64, threshold float64) bool {
	for _, fact := range q.Facts {
		if conf, ok := known[fact]; ok && conf > threshold {
			return true
		}
	}
	return false
}

// relevant reports whether at least one cause the question discriminates is
// still plausible.
func relevant(q *knowledge.Question, v belief.Vector, floor float64) bool {
	for _, cause := range q.AffectedCauses {
		if v[cause] >= floor {
			return true
		}
	}
	return false
}

// expectedGain estimates IG(q) = H(B) - sum_a P(a) * H(update(B, q, a)).
// P(a) comes from the question's answer history when available, otherwise a
// uniform yes/no split with zero weight on uncertain. Degenerate updates
// contribute the prior entropy (they change nothing).
func expectedGain(v belief.Vector, priorEntropy float64, q knowledge.Question, stats Stats) float64 {
	pYes, pNo, pUnc := 0.5, 0.5, 0.0
	if stats != nil {
		if yes, no, unc, ok := stats.AnswerDistribution(q.ID); ok {
			total := yes + no + unc
			if total > 0 {
				pYes, pNo, pUnc = yes/total, no/total, unc/total
			}
		}
	}

	expected := 0.0
	for _, a := range []struct {
		answer knowledge.Answer
		p      float64
	}{
		{knowledge.AnswerYes, pYes},
		{knowledge.AnswerNo, pNo},
		{knowledge.AnswerUncertain, pUnc},
	} {
		if a.p == 0 {
			continue
		}
		posterior, noop := belief.Update(v, q, a.answer)
		if noop {
			expected += a.p * priorEntropy
			continue
		}
		expected += a.p * posterior.Entropy()
	}

	return priorEntropy - expected
}

// better reports whether candidate (gain, q) beats the current best. Called
// in insertion order, so returning false on full ties keeps the earlier
// candidate.
func better(gain float64, q knowledge.Question, bestGain float64, best knowledge.Question) bool {
	if gain > bestGain+gainTieEps {
		return true
	}
	if gain < bestGain-gainTieEps {
		return false
	}
	if q.InfoGainEstimate != best.InfoGainEstimate {
		return q.InfoGainEstimate > best.InfoGainEstimate
	}
	return q.CheaperThan(best)
}
