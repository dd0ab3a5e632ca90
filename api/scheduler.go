/*
scheduler.go - Automated daily settlement scheduler

PURPOSE:
  Runs the nightly settlement sweep: shortly after the Brazil-local day
  rolls over, every user's unprocessed days are evaluated and settled.
  Also checks punishment releases hourly so time-based releases do not
  wait for the next task completion.

DESIGN:
  - gocron v2 jobs pinned to the America/Sao_Paulo calendar
  - Settlement job at 00:05 local: the five-minute margin keeps clock
    skew from settling the day that just started
  - Per-user failures are logged and skipped; one bad user must not
    stall the sweep
  - Safe to run concurrently with user traffic: settlement refuses
    already-processed days

USAGE:
  scheduler, err := NewScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - settlement/engine.go: ProcessUnprocessedDays
  - handlers.go: manual settle endpoints
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/heitormissions/ledger-engine/ledger"
)

// Scheduler drives the nightly settlement sweep and punishment releases.
type Scheduler struct {
	Handler *Handler

	scheduler gocron.Scheduler
}

// NewScheduler creates the scheduler with jobs registered but not started.
func NewScheduler(h *Handler) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(ledger.BrazilZone))
	if err != nil {
		return nil, err
	}
	s := &Scheduler{Handler: h, scheduler: sched}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(s.runSettlementSweep),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(s.runPunishmentReleases),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Println("[Scheduler] Started: settlement sweep daily at 00:05, punishment releases hourly")
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("[Scheduler] Shutdown error: %v", err)
		return
	}
	log.Println("[Scheduler] Stopped")
}

// RunSettlementSweepNow triggers the sweep outside its schedule. Used by
// tests and operational tooling.
func (s *Scheduler) RunSettlementSweepNow(ctx context.Context) {
	s.sweep(ctx)
}

func (s *Scheduler) runSettlementSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) {
	log.Println("[Scheduler] Running settlement sweep...")

	users, err := s.Handler.Store.ListUserIDs(ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list users: %v", err)
		return
	}

	settled := 0
	for _, userID := range users {
		recs, err := s.Handler.Engine.ProcessUnprocessedDays(ctx, userID)
		if err != nil {
			log.Printf("[Scheduler] Settlement failed for user %s: %v", userID, err)
			continue
		}
		settled += len(recs)
	}
	log.Printf("[Scheduler] Settlement sweep complete: %d users checked, %d days settled",
		len(users), settled)
}

func (s *Scheduler) runPunishmentReleases() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	users, err := s.Handler.Store.ListUserIDs(ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list users: %v", err)
		return
	}

	for _, userID := range users {
		released, err := s.Handler.Punishment.CheckRelease(ctx, userID, time.Now())
		if err != nil {
			log.Printf("[Scheduler] Punishment check failed for user %s: %v", userID, err)
			continue
		}
		if released {
			log.Printf("[Scheduler] Punishment released for user %s", userID)
		}
	}
}
