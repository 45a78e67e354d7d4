package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/logger"
)

// Sweeper runs the stale-queue sweep on a cron schedule.
type Sweeper struct {
	log   zerolog.Logger
	cron  *cron.Cron
	sched *Scheduler
}

// NewSweeper creates a sweeper over the scheduler.
func NewSweeper(sched *Scheduler) *Sweeper {
	return &Sweeper{
		log:   logger.GetForComponent("queue_sweeper"),
		cron:  cron.New(cron.WithSeconds()),
		sched: sched,
	}
}

// Start registers the sweep task with the given cron spec and starts the
// schedule.
func (w *Sweeper) Start(spec string) error {
	if _, err := w.cron.AddFunc(spec, w.sched.SweepStale); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	w.cron.Start()
	w.log.Info().Str("spec", spec).Msg("Stale-queue sweeper started")
	return nil
}

// Stop stops the cron schedule, waiting for a running sweep to finish.
func (w *Sweeper) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.log.Info().Msg("Stale-queue sweeper stopped")
}
