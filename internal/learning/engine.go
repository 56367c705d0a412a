// Package learning implements the offline batch loop that grows the
// knowledge base from finished diagnostic sessions: pattern discovery,
// question generation, and per-question effectiveness audits. Candidates
// it produces stay pending until a human approves them.
package learning

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/session"
)

// Config holds the statistical gates and thresholds of a learning run.
type Config struct {
	// N0 is the support-count scale in the derived-confidence curve.
	N0 float64
	// MinSupport, MinSuccessRate, and MinConfidence are independent
	// approval gates for pattern candidates. All three must pass.
	MinSupport     int
	MinSuccessRate float64
	MinConfidence  float64
	// EntropyThreshold restricts question generation to sessions that
	// started ambiguous (initial entropy above this many bits).
	EntropyThreshold float64
	// MinClusterSessions is how many independent sessions a breakthrough
	// effect must recur in before it becomes a question candidate.
	MinClusterSessions int
	// LowValueMinAsked and LowValueGainFloor control the effectiveness
	// audit: a question asked at least LowValueMinAsked times whose mean
	// observed gain stays under LowValueGainFloor is flagged low-value.
	LowValueMinAsked  int
	LowValueGainFloor float64
	// AutoApprove promotes candidates whose confidence clears
	// AutoApproveConfidence without human review. Off by default.
	AutoApprove           bool
	AutoApproveConfidence float64
	// LookbackDays bounds the session scan window.
	LookbackDays int
}

// DefaultConfig returns the production gates.
func DefaultConfig() Config {
	return Config{
		N0:                    5,
		MinSupport:            3,
		MinSuccessRate:        0.7,
		MinConfidence:         0.65,
		EntropyThreshold:      1.5,
		MinClusterSessions:    3,
		LowValueMinAsked:      5,
		LowValueGainFloor:     0.1,
		AutoApprove:           false,
		AutoApproveConfidence: 0.9,
		LookbackDays:          30,
	}
}

// Engine runs the discovery passes over a batch of finished sessions.
type Engine struct {
	cfg       Config
	sessions  *session.Store
	knowledge *knowledge.Store
	library   *knowledge.Library
	stats     *Stats
}

// NewEngine creates a learning engine over the given stores.
func NewEngine(cfg Config, sessions *session.Store, store *knowledge.Store, library *knowledge.Library, stats *Stats) *Engine {
	return &Engine{cfg: cfg, sessions: sessions, knowledge: store, library: library, stats: stats}
}

// patternGroup accumulates one (category, symptom set, cause) aggregate.
type patternGroup struct {
	category   string
	symptoms   []knowledge.Symptom
	cause      knowledge.Cause
	observed   int
	successes  int
	sessionIDs []string
}

// DiscoverPatterns groups outcome-annotated sessions by (category, symptom
// set, diagnosed cause) and emits candidates for groups that pass all three
// gates: support count, success rate, and derived confidence. Groups that
// match an already-learned pattern reinforce it in place instead of
// producing a duplicate candidate. Malformed sessions are skipped and
// counted, never abort the run.
func (e *Engine) DiscoverPatterns(ctx context.Context, sessions []session.Session) (discovered, skipped int, err error) {
	groups := make(map[string]*patternGroup)
	var order []string

	for _, sess := range sessions {
		if sess.FinalCause == "" || len(sess.Symptoms) == 0 || sess.Resolution == nil {
			skipped++
			continue
		}
		key := sess.Category + "|" + knowledge.SymptomKey(sess.Symptoms) + "|" + string(sess.FinalCause)
		g, ok := groups[key]
		if !ok {
			g = &patternGroup{
				category: sess.Category,
				symptoms: append([]knowledge.Symptom(nil), sess.Symptoms...),
				cause:    sess.FinalCause,
			}
			groups[key] = g
			order = append(order, key)
		}
		g.observed++
		if *sess.Resolution {
			g.successes++
		}
		g.sessionIDs = append(g.sessionIDs, sess.ID)
	}
	sort.Strings(order)

	for _, key := range order {
		g := groups[key]
		n := g.observed
		r := float64(g.successes) / float64(n)
		w := knowledge.DerivedConfidence(n, r, e.cfg.N0)
		if n < e.cfg.MinSupport || r < e.cfg.MinSuccessRate || w < e.cfg.MinConfidence {
			continue
		}

		existing, err := e.knowledge.FindPattern(ctx, g.category, knowledge.SymptomKey(g.symptoms), g.cause)
		if err != nil {
			return discovered, skipped, fmt.Errorf("matching group against learned patterns: %w", err)
		}
		if existing != nil {
			if err := e.knowledge.ReinforcePattern(ctx, existing.ID, n, r, e.cfg.N0); err != nil {
				return discovered, skipped, fmt.Errorf("reinforcing pattern %s: %w", existing.ID, err)
			}
			continue
		}

		if err := e.knowledge.InsertPatternCandidate(ctx, knowledge.PatternCandidate{
			Category:           g.category,
			Symptoms:           g.symptoms,
			Cause:              g.cause,
			ObservedCount:      n,
			SuccessCount:       g.successes,
			Confidence:         w,
			SupportingSessions: g.sessionIDs,
		}); err != nil {
			return discovered, skipped, fmt.Errorf("storing pattern candidate: %w", err)
		}
		discovered++
	}

	return discovered, skipped, nil
}

// breakthrough is the single answered question that produced the largest
// entropy drop in one session.
type breakthrough struct {
	sessionID  string
	category   string
	questionID string
	text       string
	causes     []knowledge.Cause
	gain       float64
}

// GenerateQuestions scans successful sessions that started ambiguous,
// finds each one's breakthrough question, and clusters breakthroughs by
// their effect (the set of causes they moved). Effects recurring across
// enough independent sessions become question candidates whose gain
// estimate is the observed mean entropy drop.
func (e *Engine) GenerateQuestions(ctx context.Context, sessions []session.Session) (discovered, skipped int, err error) {
	snap := e.library.Snapshot()

	var breakthroughs []breakthrough
	for _, sess := range sessions {
		if sess.Resolution == nil || !*sess.Resolution {
			continue
		}
		snaps, err := e.sessions.Snapshots(ctx, sess.ID)
		if err != nil {
			return 0, skipped, fmt.Errorf("loading snapshots for %s: %w", sess.ID, err)
		}
		if len(snaps) == 0 {
			skipped++
			continue
		}
		if snaps[0].Belief.Entropy() <= e.cfg.EntropyThreshold {
			continue
		}

		turns, err := e.sessions.Interactions(ctx, sess.ID)
		if err != nil {
			return 0, skipped, fmt.Errorf("loading interactions for %s: %w", sess.ID, err)
		}
		best, ok := bestDrop(sess, turns)
		if !ok {
			continue
		}
		breakthroughs = append(breakthroughs, best)
	}

	clusters := make(map[string][]breakthrough)
	var order []string
	for _, b := range breakthroughs {
		key := b.category + "|" + causeKey(b.causes)
		if _, ok := clusters[key]; !ok {
			order = append(order, key)
		}
		clusters[key] = append(clusters[key], b)
	}
	sort.Strings(order)

	for _, key := range order {
		cluster := clusters[key]
		if distinctSessions(cluster) < e.cfg.MinClusterSessions {
			continue
		}

		rep := representative(cluster)
		var total float64
		for _, b := range cluster {
			total += b.gain
		}
		avg := total / float64(len(cluster))

		cand := knowledge.QuestionCandidate{
			Category:        rep.category,
			BasedOnQuestion: rep.questionID,
			Text:            rep.text,
			AffectedCauses:  rep.causes,
			ObservedCount:   len(cluster),
			AvgGain:         avg,
		}
		if q, ok := snap.Question(rep.questionID); ok {
			cand.YesUpdates = q.YesUpdates
			cand.NoUpdates = q.NoUpdates
		} else {
			// Source question left the pool since the session ran.
			log.Printf("learning: breakthrough question %s no longer in snapshot, skipping cluster", rep.questionID)
			skipped++
			continue
		}

		if err := e.knowledge.InsertQuestionCandidate(ctx, cand); err != nil {
			return discovered, skipped, fmt.Errorf("storing question candidate: %w", err)
		}
		discovered++
	}

	return discovered, skipped, nil
}

// bestDrop returns the answered interaction with the largest entropy drop.
func bestDrop(sess session.Session, turns []session.Interaction) (breakthrough, bool) {
	var best breakthrough
	found := false
	for _, t := range turns {
		if t.Answer == nil || t.EntropyAfter == nil {
			continue
		}
		gain := t.EntropyBefore - *t.EntropyAfter
		if gain <= 0 {
			continue
		}
		if !found || gain > best.gain {
			best = breakthrough{
				sessionID:  sess.ID,
				category:   sess.Category,
				questionID: t.QuestionID,
				text:       t.QuestionText,
				causes:     changedCauses(t.BeliefChange),
				gain:       gain,
			}
			found = true
		}
	}
	return best, found
}

// changedCauses extracts the causes a belief update actually moved.
func changedCauses(change map[string]float64) []knowledge.Cause {
	var causes []knowledge.Cause
	for c, delta := range change {
		if math.Abs(delta) > 1e-9 {
			causes = append(causes, knowledge.Cause(c))
		}
	}
	sort.Slice(causes, func(i, j int) bool { return causes[i] < causes[j] })
	return causes
}

func causeKey(causes []knowledge.Cause) string {
	parts := make([]string, len(causes))
	for i, c := range causes {
		parts[i] = string(c)
	}
	return strings.Join(parts, "+")
}

func distinctSessions(cluster []breakthrough) int {
	seen := make(map[string]bool)
	for _, b := range cluster {
		seen[b.sessionID] = true
	}
	return len(seen)
}

// representative picks the most frequent question in a cluster, breaking
// ties by id for determinism.
func representative(cluster []breakthrough) breakthrough {
	counts := make(map[string]int)
	for _, b := range cluster {
		counts[b.questionID]++
	}
	best := cluster[0]
	for _, b := range cluster[1:] {
		switch {
		case counts[b.questionID] > counts[best.questionID]:
			best = b
		case counts[b.questionID] == counts[best.questionID] && b.questionID < best.questionID:
			best = b
		}
	}
	return best
}
