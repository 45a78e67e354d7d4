/*

This file contains the EventIngestor: the boundary translating venue
notifications into ledger and scheduler calls. Every pool gets its own
buffered channel and worker goroutine, so all mutations for one pool are
serialized while unrelated pools are processed fully in parallel.

*/

package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/metrics"
	"github.com/elys-network/acm/internal/scheduler"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
)

// workerBuffer bounds the per-pool event backlog. A full buffer applies
// backpressure to the venue feed rather than dropping accounting events.
const workerBuffer = 256

// Ingestor routes venue notifications to per-pool workers.
type Ingestor struct {
	log        zerolog.Logger
	strategies *strategy.Store
	ledger     *ledger.Ledger
	scheduler  *scheduler.Scheduler

	mu      sync.Mutex
	workers map[types.PoolID]chan types.VenueEvent
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an ingestor over the given components.
func New(strategies *strategy.Store, feeLedger *ledger.Ledger, sched *scheduler.Scheduler) *Ingestor {
	return &Ingestor{
		log:        logger.GetForComponent("event_ingestor"),
		strategies: strategies,
		ledger:     feeLedger,
		scheduler:  sched,
		workers:    make(map[types.PoolID]chan types.VenueEvent),
	}
}

// Start prepares the ingestor to accept events.
func (in *Ingestor) Start(ctx context.Context) {
	in.ctx, in.cancel = context.WithCancel(ctx)
	in.log.Info().Msg("Event ingestor started")
}

// Stop drains all pool workers and waits for them to exit.
func (in *Ingestor) Stop() {
	if in.cancel != nil {
		in.cancel()
	}
	in.mu.Lock()
	for _, ch := range in.workers {
		close(ch)
	}
	in.workers = make(map[types.PoolID]chan types.VenueEvent)
	in.mu.Unlock()
	in.wg.Wait()
	in.log.Info().Msg("Event ingestor stopped")
}

// Dispatch hands one venue notification to its pool's worker, spawning the
// worker on first sight of the pool. Dispatch is the venue stream's handler
// and is called from a single goroutine in feed order.
func (in *Ingestor) Dispatch(event types.VenueEvent) {
	metrics.VenueEvents.WithLabelValues(string(event.Kind)).Inc()

	in.mu.Lock()
	if in.ctx == nil || in.ctx.Err() != nil {
		in.mu.Unlock()
		return
	}
	ch, ok := in.workers[event.PoolID]
	if !ok {
		ch = make(chan types.VenueEvent, workerBuffer)
		in.workers[event.PoolID] = ch
		in.wg.Add(1)
		go in.runWorker(event.PoolID, ch)
	}
	in.mu.Unlock()

	select {
	case ch <- event:
	case <-in.ctx.Done():
	}
}

// runWorker consumes one pool's events in order.
func (in *Ingestor) runWorker(pool types.PoolID, ch chan types.VenueEvent) {
	defer in.wg.Done()
	wlog := in.log.With().Uint64("pool", uint64(pool)).Logger()
	wlog.Debug().Msg("Pool worker started")

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				wlog.Debug().Msg("Pool worker stopped")
				return
			}
			in.handle(wlog, event)
		case <-in.ctx.Done():
			wlog.Debug().Msg("Pool worker stopped")
			return
		}
	}
}

func (in *Ingestor) handle(wlog zerolog.Logger, event types.VenueEvent) {
	switch event.Kind {
	case types.EventPoolInitialized:
		in.strategies.InitPool(event.PoolID, event.FeeRate)

	case types.EventSwap:
		in.handleSwap(wlog, event)

	case types.EventLiquidityAdded:
		in.handleLiquidityChange(wlog, event, false)

	case types.EventLiquidityRemoved:
		in.handleLiquidityChange(wlog, event, true)

	default:
		wlog.Warn().Str("kind", string(event.Kind)).Msg("Unknown venue event kind, skipping")
	}
}

// handleSwap accrues the initiating participant's fee share and attempts to
// schedule a compound. A precondition miss is the normal steady state, not
// an error.
func (in *Ingestor) handleSwap(wlog zerolog.Logger, event types.VenueEvent) {
	pool, ok := in.strategies.GetPool(event.PoolID)
	if !ok {
		wlog.Warn().Msg("Swap for unregistered pool, skipping")
		return
	}

	fee := in.ledger.SwapFee(event.Delta0, event.Delta1, pool.FeeRate)
	if !in.ledger.RecordFee(event.Participant, event.PoolID, fee) {
		return
	}

	err := in.scheduler.Schedule(event.Participant, event.PoolID)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrCannotScheduleYet):
		wlog.Debug().Err(err).Str("participant", string(event.Participant)).Msg("Compound not yet eligible")
	default:
		wlog.Error().Err(err).Str("participant", string(event.Participant)).Msg("Failed to schedule compound")
	}
}

// handleLiquidityChange adjusts the pool's TVL by the signed delta, only
// when the mutating participant has an active strategy.
func (in *Ingestor) handleLiquidityChange(wlog zerolog.Logger, event types.VenueEvent, removal bool) {
	if !in.strategies.IsActive(event.Participant) {
		return
	}
	if err := in.strategies.AdjustTVL(event.PoolID, event.Delta, removal); err != nil {
		wlog.Warn().Err(err).Msg("Liquidity change for unregistered pool, skipping")
	}
}
