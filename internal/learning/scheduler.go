package learning

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers learning runs on a cron schedule. The runner's lock
// makes overlapping triggers harmless: a tick that fires while a run is
// active is dropped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// NewScheduler creates a scheduler that fires the runner on the given cron
// expression (standard five-field syntax, e.g. "0 3 * * *").
func NewScheduler(runner *Runner, schedule string) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		report, err := runner.Run(context.Background(), 0)
		if errors.Is(err, ErrRunActive) {
			log.Printf("learning: scheduled run skipped, previous run still active")
			return
		}
		if err != nil {
			log.Printf("learning: scheduled run failed: %v", err)
			return
		}
		log.Printf("learning: scheduled run %s complete", report.RunID)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid learning schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, runner: runner}, nil
}

// Start begins firing scheduled runs in a background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
