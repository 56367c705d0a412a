// Package tutorials stores the remediation corpus and scores it against
// session transcripts by keyword overlap. Semantic similarity lives in the
// vectordb package; the retrieval package blends the two.
package tutorials

import (
	"strings"
	"time"
	"unicode"
)

// Tutorial is one remediation document from the corpus.
type Tutorial struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Keywords   []string  `json:"keywords"`
	CauseTags  []string  `json:"cause_tags"`
	Difficulty string    `json:"difficulty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// KeywordMatch pairs a tutorial with its keyword overlap score.
type KeywordMatch struct {
	Tutorial Tutorial
	Score    float64
}

// Tokenize lowercases text and splits it into alphanumeric tokens.
func Tokenize(text string) []string {
	var tokens []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 1 {
			tokens = append(tokens, sb.String())
		}
		sb.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Jaccard returns the intersection-over-union of the two token lists.
// Empty inputs score zero.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
