package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/session"
)

// Stats persists per-question aggregate metrics and serves the selector's
// historical answer distributions. Written only by learning runs; read by
// concurrent sessions.
type Stats struct {
	db *db.DB
}

// NewStats creates a stats store backed by the given database.
func NewStats(database *db.DB) *Stats {
	return &Stats{db: database}
}

// AnswerDistribution returns the historical yes/no/uncertain probabilities
// for a question. ok is false when the question has never been answered,
// in which case the selector falls back to its uniform prior.
func (s *Stats) AnswerDistribution(questionID string) (yes, no, uncertain float64, ok bool) {
	var y, n, u int
	err := s.db.QueryRow(`
		SELECT yes_count, no_count, uncertain_count
		FROM question_stats
		WHERE question_id = ?`, questionID).Scan(&y, &n, &u)
	if err != nil {
		return 0, 0, 0, false
	}
	total := y + n + u
	if total == 0 {
		return 0, 0, 0, false
	}
	t := float64(total)
	return float64(y) / t, float64(n) / t, float64(u) / t, true
}

// questionAggregate accumulates one question's metrics across a batch.
type questionAggregate struct {
	category  string
	asked     int
	yes       int
	no        int
	uncertain int
	gainSum   float64
	gainCount int
	// sessions the question was asked in, split by outcome
	askedSolved   int
	askedResolved int
	lastAsked     time.Time
}

// UpdateEffectiveness recomputes per-question aggregates over a batch of
// outcome-annotated sessions and flags questions whose observed gain stays
// under the floor. Flagged questions leave the active pool on the next
// library rebuild but keep their stats row and audit trail.
func (e *Engine) UpdateEffectiveness(ctx context.Context, sessions []session.Session) error {
	aggs := make(map[string]*questionAggregate)
	var order []string

	for _, sess := range sessions {
		turns, err := e.sessions.Interactions(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("loading interactions for %s: %w", sess.ID, err)
		}
		for _, t := range turns {
			a, ok := aggs[t.QuestionID]
			if !ok {
				a = &questionAggregate{category: sess.Category}
				aggs[t.QuestionID] = a
				order = append(order, t.QuestionID)
			}
			if t.AskedAt.After(a.lastAsked) {
				a.lastAsked = t.AskedAt
			}
			if t.Answer == nil {
				continue
			}
			a.asked++
			switch *t.Answer {
			case knowledge.AnswerYes:
				a.yes++
			case knowledge.AnswerNo:
				a.no++
			default:
				a.uncertain++
			}
			if t.EntropyAfter != nil {
				a.gainSum += t.EntropyBefore - *t.EntropyAfter
				a.gainCount++
			}
			if sess.Resolution != nil {
				a.askedResolved++
				if *sess.Resolution {
					a.askedSolved++
				}
			}
		}
	}
	sort.Strings(order)

	baseline := solvedRate(sessions)

	for _, id := range order {
		a := aggs[id]
		avgGain := 0.0
		if a.gainCount > 0 {
			avgGain = a.gainSum / float64(a.gainCount)
		}
		correlation := 0.0
		if a.askedResolved > 0 {
			correlation = float64(a.askedSolved)/float64(a.askedResolved) - baseline
		}
		lowValue := a.asked >= e.cfg.LowValueMinAsked && avgGain < e.cfg.LowValueGainFloor

		_, err := e.stats.db.ExecContext(ctx, `
			INSERT INTO question_stats
			(question_id, category, times_asked, yes_count, no_count, uncertain_count, avg_information_gain, success_correlation, low_value, last_asked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(question_id) DO UPDATE SET
				category = excluded.category,
				times_asked = excluded.times_asked,
				yes_count = excluded.yes_count,
				no_count = excluded.no_count,
				uncertain_count = excluded.uncertain_count,
				avg_information_gain = excluded.avg_information_gain,
				success_correlation = excluded.success_correlation,
				low_value = excluded.low_value,
				last_asked = excluded.last_asked`,
			id, a.category, a.asked, a.yes, a.no, a.uncertain, avgGain, correlation,
			boolToInt(lowValue), a.lastAsked.UTC().Format(time.DateTime))
		if err != nil {
			return fmt.Errorf("upserting stats for question %s: %w", id, err)
		}
	}

	return nil
}

func solvedRate(sessions []session.Session) float64 {
	var resolved, solved int
	for _, sess := range sessions {
		if sess.Resolution == nil {
			continue
		}
		resolved++
		if *sess.Resolution {
			solved++
		}
	}
	if resolved == 0 {
		return 0
	}
	return float64(solved) / float64(resolved)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
