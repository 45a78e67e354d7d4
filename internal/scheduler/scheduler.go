/*

This file contains the BatchScheduler: per-pool pending queues, the
precondition checks gating enqueue, and the trigger policy deciding when a
queue is handed to the executor.

All queue access for one pool happens under that pool's lock, which also
covers the flush hand-off. Different pools never contend with each other.

*/

package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/metrics"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
	"github.com/elys-network/acm/internal/venue"
)

var (
	// ErrCannotScheduleYet is the expected steady-state outcome when a
	// participant's fees are not yet eligible. Callers simply wait for the
	// next trigger; this is not a failure of the system.
	ErrCannotScheduleYet = errors.New("cannot schedule compound yet")

	// ErrEmptyQueue is returned by ForceFlush when nothing is pending.
	ErrEmptyQueue = errors.New("pending queue is empty")
)

// Flusher executes a drained batch. Implemented by the batch executor.
type Flusher interface {
	ExecuteBatch(pool types.PoolID, entries []types.PendingCompound, trigger types.BatchTrigger) (*types.BatchReceipt, error)
}

type poolState struct {
	mu    sync.Mutex
	queue *pendingQueue
}

// Scheduler owns every pool's pending queue and applies the trigger policy.
type Scheduler struct {
	log        zerolog.Logger
	params     *types.CompoundParameters
	strategies *strategy.Store
	ledger     *ledger.Ledger
	venue      venue.Venue
	executor   Flusher

	mu    sync.Mutex
	pools map[types.PoolID]*poolState

	nowFn func() time.Time
}

// New creates a scheduler over the given stores and executor.
func New(params *types.CompoundParameters, strategies *strategy.Store, feeLedger *ledger.Ledger, vn venue.Venue, executor Flusher) *Scheduler {
	return &Scheduler{
		log:        logger.GetForComponent("batch_scheduler"),
		params:     params,
		strategies: strategies,
		ledger:     feeLedger,
		venue:      vn,
		executor:   executor,
		pools:      make(map[types.PoolID]*poolState),
		nowFn:      time.Now,
	}
}

// SetClock overrides the scheduler's time source. Used by tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.nowFn = now }

func (s *Scheduler) pool(id types.PoolID) *poolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.pools[id]
	if !ok {
		ps = &poolState{queue: newPendingQueue()}
		s.pools[id] = ps
	}
	return ps
}

// Schedule enqueues a compound request for the participant's current pending
// amount, then evaluates the flush trigger. Every precondition violation is
// reported as ErrCannotScheduleYet with the reason attached.
func (s *Scheduler) Schedule(participant types.Participant, pool types.PoolID) error {
	ps := s.pool(pool)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	st, ok := s.strategies.Get(participant)
	if !ok || !st.IsActive {
		return fmt.Errorf("%w: no active strategy", ErrCannotScheduleYet)
	}

	pending := s.ledger.Pending(participant, pool)
	if pending.LT(s.params.MinCompoundAmount) {
		return fmt.Errorf("%w: pending %s below minimum %s", ErrCannotScheduleYet, pending, s.params.MinCompoundAmount)
	}

	price, err := s.venue.OverheadPrice()
	if err != nil {
		return fmt.Errorf("%w: overhead price unavailable: %v", ErrCannotScheduleYet, err)
	}
	if price.GT(st.OverheadPriceCeiling) {
		return fmt.Errorf("%w: overhead price %s above ceiling %s", ErrCannotScheduleYet, price, st.OverheadPriceCeiling)
	}

	now := s.nowFn()
	if now.Sub(st.LastCompound) < s.params.MinActionInterval {
		return fmt.Errorf("%w: last compound %s ago, interval is %s", ErrCannotScheduleYet, now.Sub(st.LastCompound), s.params.MinActionInterval)
	}

	if ps.queue.contains(participant) {
		return fmt.Errorf("%w: already queued", ErrCannotScheduleYet)
	}

	ps.queue.push(types.PendingCompound{
		Participant:  participant,
		PoolID:       pool,
		Amount:       pending,
		EnqueuedAt:   now,
		PriceCeiling: st.OverheadPriceCeiling,
	})
	metrics.QueueDepth.WithLabelValues(poolLabel(pool)).Set(float64(ps.queue.size()))

	s.log.Info().
		Str("event", "BatchScheduled").
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Str("amount", pending.String()).
		Int("queueSize", ps.queue.size()).
		Msg("Compound request queued")

	if trigger := s.evaluateTrigger(ps.queue, price, now); trigger != "" {
		s.flushLocked(pool, ps, trigger)
	}
	return nil
}

// evaluateTrigger applies the flush conditions in order:
//  1. queue reached MinBatchSize and the current overhead price is at or
//     below the mean of all queued ceilings,
//  2. the oldest entry has waited MaxBatchWait or longer,
//  3. the queue hit the hard MaxBatchSize cap, price-independent.
//
// A nil price skips condition 1 (price feed unavailable).
func (s *Scheduler) evaluateTrigger(q *pendingQueue, price sdkmath.LegacyDec, now time.Time) types.BatchTrigger {
	if q.size() == 0 {
		return ""
	}
	if q.size() >= s.params.MinBatchSize && !price.IsNil() && price.LTE(q.meanCeiling()) {
		return types.TriggerSizeAndPrice
	}
	if oldest, ok := q.oldestEnqueuedAt(); ok && now.Sub(oldest) >= s.params.MaxBatchWait {
		return types.TriggerMaxWait
	}
	if q.size() >= s.params.MaxBatchSize {
		return types.TriggerSizeCap
	}
	return ""
}

// ForceFlush flushes the pool's queue unconditionally, bypassing the
// price, size and wait checks. Administrative escape hatch.
func (s *Scheduler) ForceFlush(pool types.PoolID) (*types.BatchReceipt, error) {
	ps := s.pool(pool)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.queue.size() == 0 {
		return nil, ErrEmptyQueue
	}
	s.log.Warn().Uint64("pool", uint64(pool)).Int("queueSize", ps.queue.size()).Msg("Force flush requested")
	return s.flushLocked(pool, ps, types.TriggerForced)
}

// SweepStale re-evaluates the trigger for every non-empty queue. Registered
// with the cron sweeper so the MaxBatchWait staleness bound holds even for
// pools no event touches.
func (s *Scheduler) SweepStale() {
	s.mu.Lock()
	poolIDs := make([]types.PoolID, 0, len(s.pools))
	for id := range s.pools {
		poolIDs = append(poolIDs, id)
	}
	s.mu.Unlock()

	price, err := s.venue.OverheadPrice()
	if err != nil {
		s.log.Warn().Err(err).Msg("Sweep: overhead price unavailable, price-gated trigger disabled this pass")
		price = sdkmath.LegacyDec{}
	}

	now := s.nowFn()
	for _, id := range poolIDs {
		ps := s.pool(id)
		ps.mu.Lock()
		if trigger := s.evaluateTrigger(ps.queue, price, now); trigger != "" {
			s.log.Info().Uint64("pool", uint64(id)).Str("trigger", string(trigger)).Msg("Sweep triggered flush")
			s.flushLocked(id, ps, trigger)
		}
		ps.mu.Unlock()
	}
}

// flushLocked drains the queue and hands the snapshot to the executor. The
// pool lock is held throughout, so no schedule for this pool can interleave
// with the flush.
func (s *Scheduler) flushLocked(pool types.PoolID, ps *poolState, trigger types.BatchTrigger) (*types.BatchReceipt, error) {
	entries := ps.queue.drain()
	metrics.QueueDepth.WithLabelValues(poolLabel(pool)).Set(0)

	receipt, err := s.executor.ExecuteBatch(pool, entries, trigger)
	if err != nil {
		s.log.Error().Err(err).Uint64("pool", uint64(pool)).Int("entries", len(entries)).Msg("Batch execution failed")
		return nil, err
	}
	return receipt, nil
}

// QueueSize returns the number of pending requests for the pool.
func (s *Scheduler) QueueSize(pool types.PoolID) int {
	ps := s.pool(pool)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.queue.size()
}

// QueueSnapshot returns a copy of the pool's pending requests.
func (s *Scheduler) QueueSnapshot(pool types.PoolID) []types.PendingCompound {
	ps := s.pool(pool)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.queue.snapshot()
}

func poolLabel(pool types.PoolID) string {
	return strconv.FormatUint(uint64(pool), 10)
}
