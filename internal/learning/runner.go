package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/session"
)

// ErrRunActive is returned when a learning cycle is requested while
// another one is still running. Only one writer may be active at a time
// so session outcomes are never double-counted.
var ErrRunActive = errors.New("a learning run is already active")

// Report summarizes one learning cycle. The two skip counts are kept
// separate because the passes skip for different reasons; one session can
// legitimately appear in both.
type Report struct {
	RunID               string `json:"run_id"`
	ScannedSessions     int    `json:"scanned_sessions"`
	SkippedPatterns     int    `json:"skipped_patterns"`
	SkippedQuestions    int    `json:"skipped_questions"`
	DiscoveredPatterns  int    `json:"discovered_patterns"`
	DiscoveredQuestions int    `json:"discovered_questions"`
	AutoApproved        int    `json:"auto_approved,omitempty"`
}

// Runner serializes learning cycles behind a run-lock and records each
// run in the database.
type Runner struct {
	mu        sync.Mutex
	cfg       Config
	db        *db.DB
	engine    *Engine
	sessions  *session.Store
	knowledge *knowledge.Store
	library   *knowledge.Library
}

// NewRunner creates a runner around the given engine and stores.
func NewRunner(cfg Config, database *db.DB, engine *Engine, sessions *session.Store, store *knowledge.Store, library *knowledge.Library) *Runner {
	return &Runner{
		cfg:       cfg,
		db:        database,
		engine:    engine,
		sessions:  sessions,
		knowledge: store,
		library:   library,
	}
}

// Run executes one full learning cycle: scan outcome-annotated sessions in
// the lookback window, discover patterns, generate questions, refresh
// effectiveness stats, and optionally auto-approve high-confidence
// candidates. Returns ErrRunActive when another run holds the lock.
func (r *Runner) Run(ctx context.Context, lookbackDays int) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunActive
	}
	defer r.mu.Unlock()

	if lookbackDays <= 0 {
		lookbackDays = r.cfg.LookbackDays
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	report := &Report{RunID: uuid.NewString()}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO learning_runs (id) VALUES (?)`, report.RunID); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	sessions, err := r.sessions.WithOutcome(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}
	report.ScannedSessions = len(sessions)

	patterns, skippedP, err := r.engine.DiscoverPatterns(ctx, sessions)
	if err != nil {
		return nil, fmt.Errorf("discovering patterns: %w", err)
	}
	report.DiscoveredPatterns = patterns
	report.SkippedPatterns = skippedP

	questions, skippedQ, err := r.engine.GenerateQuestions(ctx, sessions)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}
	report.DiscoveredQuestions = questions
	report.SkippedQuestions = skippedQ

	if err := r.engine.UpdateEffectiveness(ctx, sessions); err != nil {
		return nil, fmt.Errorf("updating effectiveness: %w", err)
	}

	if r.cfg.AutoApprove {
		approved, err := r.autoApprove(ctx)
		if err != nil {
			return nil, err
		}
		report.AutoApproved = approved
	}

	// Rebuild even without approvals: the effectiveness pass may have
	// flagged questions out of the active pool.
	if err := r.library.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuilding knowledge snapshot: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE learning_runs
		SET finished_at = datetime('now'),
		    discovered_patterns = ?, discovered_questions = ?,
		    skipped_patterns = ?, skipped_questions = ?
		WHERE id = ?`,
		report.DiscoveredPatterns, report.DiscoveredQuestions,
		report.SkippedPatterns, report.SkippedQuestions, report.RunID); err != nil {
		return nil, fmt.Errorf("recording run result: %w", err)
	}

	log.Printf("learning: run %s scanned=%d patterns=%d questions=%d skipped=%d/%d",
		report.RunID, report.ScannedSessions, report.DiscoveredPatterns,
		report.DiscoveredQuestions, report.SkippedPatterns, report.SkippedQuestions)
	return report, nil
}

// autoApprove promotes pending pattern candidates above the auto-approval
// confidence bar. Question candidates always wait for a human.
func (r *Runner) autoApprove(ctx context.Context) (int, error) {
	pending, err := r.knowledge.PendingPatternCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing pending candidates: %w", err)
	}

	approved := 0
	for _, c := range pending {
		if c.Confidence < r.cfg.AutoApproveConfidence {
			continue
		}
		if err := r.knowledge.ApprovePatternCandidate(ctx, c.ID, r.cfg.N0); err != nil {
			return approved, fmt.Errorf("auto-approving candidate %s: %w", c.ID, err)
		}
		approved++
	}
	return approved, nil
}
