// Package belief implements the probability core of the diagnostic engine:
// initializing a belief vector from matched symptom patterns, multiplicative
// Bayesian updates from question answers, and the entropy and confidence
// queries the rest of the system is driven by.
package belief

import (
	"math"
	"sort"

	"github.com/fixloop/fixloop/internal/knowledge"
)

// Vector is a probability distribution over causes: all values are
// non-negative and sum to 1 after every operation.
type Vector map[knowledge.Cause]float64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for cause, p := range v {
		out[cause] = p
	}
	return out
}

// Normalize scales the vector in place so its values sum to 1. It reports
// false when the total mass is zero or not finite, leaving the vector
// untouched. Normalizing an already-normalized vector is a no-op.
func (v Vector) Normalize() bool {
	var total float64
	for _, p := range v {
		total += p
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return false
	}
	if total == 1 {
		return true
	}
	for cause := range v {
		v[cause] /= total
	}
	return true
}

// Entropy returns the Shannon entropy of the distribution in bits, treating
// 0*log2(0) as 0.
func (v Vector) Entropy() float64 {
	var h float64
	for _, p := range v {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// Confidence returns the highest single-cause probability.
func (v Vector) Confidence() float64 {
	var max float64
	for _, p := range v {
		if p > max {
			max = p
		}
	}
	return max
}

// Top returns the most probable cause. Ties break toward the
// lexicographically smaller cause so the result is deterministic.
func (v Vector) Top() (knowledge.Cause, float64) {
	var best knowledge.Cause
	bestP := -1.0
	for cause, p := range v {
		if p > bestP || (p == bestP && cause < best) {
			best, bestP = cause, p
		}
	}
	if bestP < 0 {
		return "", 0
	}
	return best, bestP
}

// Sorted returns the causes ordered by descending probability, ties by name.
func (v Vector) Sorted() []knowledge.Cause {
	causes := make([]knowledge.Cause, 0, len(v))
	for cause := range v {
		causes = append(causes, cause)
	}
	sort.Slice(causes, func(i, j int) bool {
		if v[causes[i]] != v[causes[j]] {
			return v[causes[i]] > v[causes[j]]
		}
		return causes[i] < causes[j]
	})
	return causes
}

// Uniform builds the uniform distribution over a cause catalog.
func Uniform(causes []knowledge.Cause) Vector {
	v := make(Vector, len(causes))
	if len(causes) == 0 {
		return v
	}
	p := 1.0 / float64(len(causes))
	for _, c := range causes {
		v[c] = p
	}
	return v
}

// Initialize fuses seed-pattern and learned-pattern evidence into the
// initial belief vector for a session.
//
// Each source contributes, per cause, the summed confidence of its patterns
// whose symptom combination is fully contained in the observed symptoms;
// each source is normalized independently, then mixed with weight alpha on
// the seed side. A source with no matching pattern contributes nothing and
// the remaining source carries the full weight. When neither source matches
// anything (or no symptoms were observed at all) the result is the uniform
// distribution over the category's cause catalog, not an error.
func Initialize(snap *knowledge.Snapshot, category string, symptoms []knowledge.Symptom, alpha float64) Vector {
	causes := snap.Causes(category)
	have := make(map[knowledge.Symptom]bool, len(symptoms))
	for _, s := range symptoms {
		have[s] = true
	}

	seed := make(Vector, len(causes))
	learned := make(Vector, len(causes))
	for _, p := range snap.Patterns(category) {
		if !p.Matches(have) {
			continue
		}
		switch p.Origin {
		case knowledge.OriginSeed:
			seed[p.Cause] += p.Confidence
		case knowledge.OriginLearned:
			if p.Approved {
				learned[p.Cause] += p.Confidence
			}
		}
	}

	seedOK := seed.Normalize()
	learnedOK := learned.Normalize()

	switch {
	case seedOK && learnedOK:
		mixed := make(Vector, len(causes))
		for cause, p := range seed {
			mixed[cause] += alpha * p
		}
		for cause, p := range learned {
			mixed[cause] += (1 - alpha) * p
		}
		mixed.Normalize()
		return mixed
	case seedOK:
		return seed
	case learnedOK:
		return learned
	}
	return Uniform(causes)
}

// Update applies a question's answer to the belief vector and returns the
// renormalized result. Causes the question does not name keep factor 1.0;
// an uncertain answer is the explicit neutral update (factor 1.0 for every
// cause), intentionally indistinguishable from an empty update map.
//
// When the update would drive the entire distribution to zero the pre-update
// vector is returned unchanged and noop is true; the update degrades to a
// no-op rather than failing.
func Update(v Vector, q knowledge.Question, answer knowledge.Answer) (updated Vector, noop bool) {
	factors := q.Updates(answer)
	if len(factors) == 0 {
		return v.Clone(), false
	}

	next := make(Vector, len(v))
	for cause, p := range v {
		factor, ok := factors[cause]
		if !ok {
			factor = 1.0
		}
		next[cause] = p * factor
	}
	if !next.Normalize() {
		return v.Clone(), true
	}
	return next, false
}
