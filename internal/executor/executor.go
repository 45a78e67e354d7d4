/*

This file contains the BatchExecutor: flushing a pool's drained queue into
one settlement operation, the single-user immediate compound path, and the
emergency override.

The pending balance is zeroed before the deposit is attempted. A deposit
failure therefore leaves the balance at zero; the failed entry is recorded
in the batch receipt and reconciled out-of-band. Failures are isolated per
entry and never abort the rest of the batch.

*/

package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/metrics"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
	"github.com/elys-network/acm/internal/venue"
)

var (
	// ErrCannotCompoundNow is the expected outcome when the single-user
	// compound path's preconditions are unmet. No state is mutated.
	ErrCannotCompoundNow = errors.New("cannot compound now")

	// ErrNoFeesToCompound is returned by the emergency path when nothing is
	// pending.
	ErrNoFeesToCompound = errors.New("no fees to compound")
)

// Persister is the executor's persistence hook. Nil disables persistence;
// batch numbers then fall back to an in-process counter.
type Persister interface {
	NextBatchNumber() (int, error)
	SaveBatchReceipt(types.BatchReceipt) (int64, error)
	CreditOverhead(participant types.Participant, actual, assumed sdkmath.Int, at time.Time) error
}

// Executor settles pending compound requests against the venue.
type Executor struct {
	log        zerolog.Logger
	params     *types.CompoundParameters
	strategies *strategy.Store
	ledger     *ledger.Ledger
	venue      venue.Venue
	persist    Persister

	mu        sync.Mutex
	poolLocks map[types.PoolID]*sync.Mutex
	seq       int // fallback batch counter when persistence is disabled

	nowFn func() time.Time
}

// New creates an executor over the given stores and venue.
func New(params *types.CompoundParameters, strategies *strategy.Store, feeLedger *ledger.Ledger, vn venue.Venue, persist Persister) *Executor {
	return &Executor{
		log:        logger.GetForComponent("batch_executor"),
		params:     params,
		strategies: strategies,
		ledger:     feeLedger,
		venue:      vn,
		persist:    persist,
		poolLocks:  make(map[types.PoolID]*sync.Mutex),
		nowFn:      time.Now,
	}
}

// SetClock overrides the executor's time source. Used by tests.
func (e *Executor) SetClock(now func() time.Time) { e.nowFn = now }

func (e *Executor) lockFor(pool types.PoolID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.poolLocks[pool]
	if !ok {
		l = &sync.Mutex{}
		e.poolLocks[pool] = l
	}
	return l
}

// ExecuteBatch settles every drained queue entry in order. Each entry's
// pending amount is consumed and deposited; the overhead cost of the whole
// settlement is split equally across the entries whose deposit was
// attempted, with the integer remainder assigned to the first of them.
func (e *Executor) ExecuteBatch(pool types.PoolID, entries []types.PendingCompound, trigger types.BatchTrigger) (*types.BatchReceipt, error) {
	if len(entries) == 0 {
		e.log.Warn().Uint64("pool", uint64(pool)).Msg("ExecuteBatch called with empty entry list")
		return nil, nil
	}

	lock := e.lockFor(pool)
	lock.Lock()
	defer lock.Unlock()

	batchID := uuid.New().String()
	blog := e.log.With().Str("batch_id", batchID).Uint64("pool", uint64(pool)).Logger()
	blog.Info().Int("entries", len(entries)).Str("trigger", string(trigger)).Msg("--- Starting batch flush ---")

	// Accounting corruption is never silently corrected.
	if err := e.strategies.VerifyPoolInvariant(pool); err != nil {
		blog.Fatal().Err(err).Msg("Pool accounting invariant violated, halting for manual reconciliation")
	}

	price, err := e.venue.OverheadPrice()
	if err != nil {
		blog.Error().Err(err).Msg("Overhead price unavailable during flush, charging zero overhead")
		price = sdkmath.LegacyZeroDec()
	}

	now := e.nowFn()
	results := make([]types.CompoundEntryResult, 0, len(entries))
	attempted := make([]int, 0, len(entries)) // indices into results, queue order
	totalAmount := sdkmath.ZeroInt()

	for _, entry := range entries {
		amount := e.ledger.ConsumePending(entry.Participant, pool)
		if amount.IsZero() {
			// Compounded through another path between enqueue and flush.
			results = append(results, types.CompoundEntryResult{
				Participant:   entry.Participant,
				Amount:        sdkmath.ZeroInt(),
				Success:       false,
				Message:       "no pending amount at flush",
				OverheadShare: sdkmath.ZeroInt(),
			})
			continue
		}

		result := e.depositEntry(blog, entry.Participant, pool, amount, now)
		attempted = append(attempted, len(results))
		results = append(results, result)
		if result.Success {
			totalAmount = totalAmount.Add(amount)
		}
	}

	gasUsed := e.params.BatchGas(len(attempted))
	overheadCost := price.MulInt64(gasUsed).TruncateInt()
	e.splitOverhead(blog, results, attempted, overheadCost, price, now)

	e.strategies.MarkPoolCompound(pool, now)

	receipt := &types.BatchReceipt{
		BatchID:          batchID,
		BatchNumber:      e.nextBatchNumber(),
		PoolID:           pool,
		Timestamp:        now,
		Trigger:          trigger,
		ParticipantCount: len(attempted),
		TotalAmount:      totalAmount,
		GasUsed:          gasUsed,
		OverheadPrice:    price,
		OverheadCost:     overheadCost,
		Entries:          results,
	}
	e.saveReceipt(blog, receipt)

	metrics.BatchesExecuted.WithLabelValues(string(trigger)).Inc()
	metrics.BatchSize.Observe(float64(len(attempted)))

	blog.Info().
		Str("event", "BatchExecuted").
		Int("participantCount", len(attempted)).
		Str("totalAmount", totalAmount.String()).
		Str("overheadCost", overheadCost.String()).
		Str("trigger", string(trigger)).
		Msg("--- Batch flush completed ---")

	return receipt, nil
}

// Compound is the immediate single-user path. It re-checks the same
// preconditions as scheduling and never mutates state when they are unmet.
func (e *Executor) Compound(participant types.Participant, pool types.PoolID) (*types.BatchReceipt, error) {
	st, ok := e.strategies.Get(participant)
	if !ok || !st.IsActive {
		return nil, fmt.Errorf("%w: no active strategy", ErrCannotCompoundNow)
	}

	pending := e.ledger.Pending(participant, pool)
	if pending.LT(e.params.MinCompoundAmount) {
		return nil, fmt.Errorf("%w: pending %s below minimum %s", ErrCannotCompoundNow, pending, e.params.MinCompoundAmount)
	}

	price, err := e.venue.OverheadPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: overhead price unavailable: %v", ErrCannotCompoundNow, err)
	}
	if price.GT(st.OverheadPriceCeiling) {
		return nil, fmt.Errorf("%w: overhead price %s above ceiling %s", ErrCannotCompoundNow, price, st.OverheadPriceCeiling)
	}

	now := e.nowFn()
	if now.Sub(st.LastCompound) < e.params.MinActionInterval {
		return nil, fmt.Errorf("%w: last compound %s ago, interval is %s", ErrCannotCompoundNow, now.Sub(st.LastCompound), e.params.MinActionInterval)
	}

	return e.executeSingle(participant, pool, price, types.TriggerSolo)
}

// EmergencyCompound is the user-initiated override: it bypasses the overhead
// price and interval checks but still requires an active strategy and a
// positive pending amount.
func (e *Executor) EmergencyCompound(participant types.Participant, pool types.PoolID) (*types.BatchReceipt, error) {
	if !e.strategies.IsActive(participant) {
		return nil, strategy.ErrNotActive
	}
	if !e.ledger.Pending(participant, pool).IsPositive() {
		return nil, ErrNoFeesToCompound
	}

	price, err := e.venue.OverheadPrice()
	if err != nil {
		e.log.Error().Err(err).Msg("Overhead price unavailable for emergency compound, charging zero overhead")
		price = sdkmath.LegacyZeroDec()
	}

	receipt, err := e.executeSingle(participant, pool, price, types.TriggerEmergency)
	if err != nil {
		return nil, err
	}

	e.log.Warn().
		Str("event", "EmergencyCompound").
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Str("amount", receipt.TotalAmount.String()).
		Msg("Emergency compound executed")
	return receipt, nil
}

// executeSingle performs the steps equivalent to one flush entry without
// queue interaction. The full solo overhead cost lands on the participant,
// so a solo compound contributes zero estimated savings.
func (e *Executor) executeSingle(participant types.Participant, pool types.PoolID, price sdkmath.LegacyDec, trigger types.BatchTrigger) (*types.BatchReceipt, error) {
	lock := e.lockFor(pool)
	lock.Lock()
	defer lock.Unlock()

	amount := e.ledger.ConsumePending(participant, pool)
	if amount.IsZero() {
		// Raced with a concurrent flush for the same participant.
		if trigger == types.TriggerEmergency {
			return nil, ErrNoFeesToCompound
		}
		return nil, fmt.Errorf("%w: pending amount already consumed", ErrCannotCompoundNow)
	}

	batchID := uuid.New().String()
	blog := e.log.With().Str("batch_id", batchID).Uint64("pool", uint64(pool)).Logger()
	now := e.nowFn()

	result := e.depositEntry(blog, participant, pool, amount, now)

	gasUsed := e.params.SoloOverheadGas
	overheadCost := price.MulInt64(gasUsed).TruncateInt()
	result.OverheadShare = overheadCost
	e.creditOverhead(blog, participant, overheadCost, overheadCost, now)

	e.strategies.MarkPoolCompound(pool, now)

	totalAmount := sdkmath.ZeroInt()
	if result.Success {
		totalAmount = amount
	}

	receipt := &types.BatchReceipt{
		BatchID:          batchID,
		BatchNumber:      e.nextBatchNumber(),
		PoolID:           pool,
		Timestamp:        now,
		Trigger:          trigger,
		ParticipantCount: 1,
		TotalAmount:      totalAmount,
		GasUsed:          gasUsed,
		OverheadPrice:    price,
		OverheadCost:     overheadCost,
		Entries:          []types.CompoundEntryResult{result},
	}
	e.saveReceipt(blog, receipt)

	metrics.BatchesExecuted.WithLabelValues(string(trigger)).Inc()
	metrics.BatchSize.Observe(1)

	return receipt, nil
}

// depositEntry deposits one consumed amount and credits the participant's
// strategy when it is still active. Called with the pending amount already
// zeroed; a failure here is recorded, not retried.
func (e *Executor) depositEntry(blog zerolog.Logger, participant types.Participant, pool types.PoolID, amount sdkmath.Int, now time.Time) types.CompoundEntryResult {
	result := types.CompoundEntryResult{
		Participant:   participant,
		Amount:        amount,
		OverheadShare: sdkmath.ZeroInt(),
	}

	dep, err := e.venue.DepositLiquidity(participant, pool, amount)
	switch {
	case err != nil:
		result.Message = err.Error()
		metrics.DepositFailures.Inc()
		blog.Error().Err(err).
			Str("participant", string(participant)).
			Str("amount", amount.String()).
			Msg("Deposit failed, entry skipped, pending amount requires manual reconciliation")
	case !dep.Success:
		result.Message = dep.ErrorMessage
		result.TxHash = dep.TxHash
		metrics.DepositFailures.Inc()
		blog.Error().
			Str("participant", string(participant)).
			Str("amount", amount.String()).
			Str("reason", dep.ErrorMessage).
			Msg("Deposit rejected by venue, entry skipped")
	default:
		result.Success = true
		result.TxHash = dep.TxHash
		if !e.strategies.CreditCompound(participant, amount, now) {
			// Deactivated since enqueue: the deposit stands, the strategy
			// credit is skipped.
			blog.Info().
				Str("participant", string(participant)).
				Msg("Strategy deactivated since enqueue, deposit kept without strategy credit")
		}
	}
	return result
}

// splitOverhead distributes the batch overhead cost equally across all
// attempted entries, deliberately not weighted by amount. The division
// remainder goes to the first attempted entry in queue order so the shares
// sum exactly to the cost.
func (e *Executor) splitOverhead(blog zerolog.Logger, results []types.CompoundEntryResult, attempted []int, overheadCost sdkmath.Int, price sdkmath.LegacyDec, now time.Time) {
	if len(attempted) == 0 || !overheadCost.IsPositive() {
		return
	}

	n := int64(len(attempted))
	share := overheadCost.QuoRaw(n)
	remainder := overheadCost.Sub(share.MulRaw(n))
	assumedSolo := price.MulInt64(e.params.SoloOverheadGas).TruncateInt()

	for i, idx := range attempted {
		entryShare := share
		if i == 0 {
			entryShare = entryShare.Add(remainder)
		}
		results[idx].OverheadShare = entryShare
		e.creditOverhead(blog, results[idx].Participant, entryShare, assumedSolo, now)
	}
}

func (e *Executor) creditOverhead(blog zerolog.Logger, participant types.Participant, actual, assumed sdkmath.Int, now time.Time) {
	if e.persist == nil {
		return
	}
	if err := e.persist.CreditOverhead(participant, actual, assumed, now); err != nil {
		blog.Error().Err(err).Str("participant", string(participant)).Msg("Failed to credit overhead ledger")
	}
}

// nextBatchNumber increments and returns the persistent batch counter,
// falling back to an in-process sequence if the database is unavailable.
func (e *Executor) nextBatchNumber() int {
	if e.persist != nil {
		n, err := e.persist.NextBatchNumber()
		if err == nil {
			return n
		}
		e.log.Error().Err(err).Msg("Failed to increment batch number, using fallback")
	}
	e.seq++
	return e.seq
}

func (e *Executor) saveReceipt(blog zerolog.Logger, receipt *types.BatchReceipt) {
	if e.persist == nil {
		return
	}
	receiptID, err := e.persist.SaveBatchReceipt(*receipt)
	if err != nil {
		blog.Error().Err(err).Msg("Failed to save batch receipt")
		return
	}
	receipt.ReceiptID = receiptID
	blog.Info().Int64("receipt_id", receiptID).Msg("Batch receipt saved")
}
