package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler runs a crawl job on a cron cadence. A cycle that is still
// running when the next tick fires suppresses that tick; cycles are
// never queued.
type Scheduler struct {
	spec    string
	job     func(context.Context) error
	running atomic.Bool
}

// New validates the cron expression and wraps the job.
func New(spec string, job func(context.Context) error) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, job: job}, nil
}

// Run executes the job once immediately, then on every cron tick until
// the context is cancelled. It waits for an in-flight cycle to finish
// before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("scheduler starting with cadence %q", s.spec)
	s.runOnce(ctx)

	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("scheduling job: %w", err)
	}
	c.Start()

	<-ctx.Done()
	log.Printf("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// runOnce runs the job unless a previous cycle is still going.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("previous crawl cycle still running, skipping this tick")
		return
	}
	defer s.running.Store(false)

	if err := s.job(ctx); err != nil {
		// Scheduled runs keep going; the next tick may succeed.
		log.Printf("crawl cycle failed: %v", err)
	}
}
