package knowledge

import (
	"math"
	"sort"
	"strings"
)

// Cause identifies a root-cause category (e.g. "thermal_issue").
type Cause string

// Symptom identifies an observable condition, produced by input analysis.
type Symptom string

// Answer is a user's reply to a diagnostic question.
type Answer string

const (
	AnswerYes       Answer = "yes"
	AnswerNo        Answer = "no"
	AnswerUncertain Answer = "uncertain"
)

// ValidAnswer reports whether a is one of the recognized answer values.
func ValidAnswer(a Answer) bool {
	return a == AnswerYes || a == AnswerNo || a == AnswerUncertain
}

// Origin identifies where a pattern or question came from.
type Origin string

const (
	OriginSeed    Origin = "seed"
	OriginLearned Origin = "learned"
)

// CostLevel describes how intrusive a question is for the user to answer.
// Cheaper questions win ties during selection.
type CostLevel string

const (
	CostSafe          CostLevel = "safe"
	CostRequiresTools CostLevel = "requires_tools"
	CostRisky         CostLevel = "risky"
)

// costRank orders cost levels, lowest first.
func costRank(c CostLevel) int {
	switch c {
	case CostSafe, "":
		return 0
	case CostRequiresTools:
		return 1
	case CostRisky:
		return 2
	}
	return 3
}

// Pattern associates a symptom combination with a single cause. Seed patterns
// carry an authored confidence; learned patterns derive theirs from support
// count and success rate.
type Pattern struct {
	ID           string
	Category     string
	Symptoms     []Symptom
	Cause        Cause
	Confidence   float64
	SupportCount int
	SuccessRate  float64
	Origin       Origin
	Approved     bool
}

// Matches reports whether every symptom of the pattern is present.
func (p Pattern) Matches(have map[Symptom]bool) bool {
	if len(p.Symptoms) == 0 {
		return false
	}
	for _, s := range p.Symptoms {
		if !have[s] {
			return false
		}
	}
	return true
}

// Question is an immutable diagnostic question. The update maps hold
// multiplicative likelihood-ratio factors, not absolute probabilities.
type Question struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	Category         string              `json:"category"`
	AffectedCauses   []Cause             `json:"affected_causes"`
	YesUpdates       map[Cause]float64   `json:"yes_updates,omitempty"`
	NoUpdates        map[Cause]float64   `json:"no_updates,omitempty"`
	InfoGainEstimate float64             `json:"information_gain_estimate"`
	CostLevel        CostLevel           `json:"cost_level,omitempty"`
	Facts            []string            `json:"facts,omitempty"`
	Origin           Origin              `json:"origin"`
}

// Updates returns the update factors for the given answer. An uncertain
// answer returns nil, which the belief engine treats as the explicit neutral
// factor 1.0 for every cause.
func (q Question) Updates(a Answer) map[Cause]float64 {
	switch a {
	case AnswerYes:
		return q.YesUpdates
	case AnswerNo:
		return q.NoUpdates
	}
	return nil
}

// CheaperThan reports whether q costs less to ask than other.
func (q Question) CheaperThan(other Question) bool {
	return costRank(q.CostLevel) < costRank(other.CostLevel)
}

// SymptomKey builds the canonical grouping key for a symptom combination:
// sorted and underscore-joined, so identical sets always compare equal.
func SymptomKey(symptoms []Symptom) string {
	uniq := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		uniq[string(s)] = true
	}
	keys := make([]string, 0, len(uniq))
	for s := range uniq {
		keys = append(keys, s)
	}
	sort.Strings(keys)
	return strings.Join(keys, "_")
}

// DerivedConfidence computes a learned pattern's confidence from its support
// count n and success rate r: r * (1 - exp(-n/n0)). Low support keeps
// confidence down regardless of a perfect success rate.
func DerivedConfidence(supportCount int, successRate float64, n0 float64) float64 {
	if supportCount <= 0 || n0 <= 0 {
		return 0
	}
	return successRate * (1 - math.Exp(-float64(supportCount)/n0))
}
