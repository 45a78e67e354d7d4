/*

This file contains the FeeLedger: accrued and pending-to-compound fee
amounts per (participant, pool) pair. PendingCompound never exceeds
TotalFeesEarned; both only move through RecordFee and ConsumePending.

*/

package ledger

import (
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/metrics"
	"github.com/elys-network/acm/internal/types"
)

// ActiveChecker reports whether a participant currently has an active
// strategy. Satisfied by the strategy store.
type ActiveChecker interface {
	IsActive(types.Participant) bool
}

// Persister is the write-through persistence hook. Nil disables persistence.
type Persister interface {
	SaveFeeAccount(types.FeeAccount) error
}

type accountKey struct {
	participant types.Participant
	pool        types.PoolID
}

// Ledger tracks fee accrual for every participant and pool.
type Ledger struct {
	log        zerolog.Logger
	params     *types.CompoundParameters
	strategies ActiveChecker
	persist    Persister

	mu       sync.RWMutex
	accounts map[accountKey]*types.FeeAccount

	nowFn func() time.Time
}

// NewLedger creates an empty fee ledger.
func NewLedger(params *types.CompoundParameters, strategies ActiveChecker, persist Persister) *Ledger {
	return &Ledger{
		log:        logger.GetForComponent("fee_ledger"),
		params:     params,
		strategies: strategies,
		persist:    persist,
		accounts:   make(map[accountKey]*types.FeeAccount),
		nowFn:      time.Now,
	}
}

// SetClock overrides the ledger's time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) { l.nowFn = now }

// Load seeds the ledger from persisted state at startup.
func (l *Ledger) Load(accounts []types.FeeAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range accounts {
		acc := accounts[i]
		l.accounts[accountKey{acc.Participant, acc.PoolID}] = &acc
	}
	l.log.Info().Int("accounts", len(accounts)).Msg("Fee ledger loaded from persisted state")
}

// SwapFee derives the liquidity provider's fee amount from a swap's leg
// deltas: fee = (|delta0| + |delta1|) * feeRate / FeeDenominator. This
// approximates the provider's pro-rata share rather than computing exact
// proportional ownership.
func (l *Ledger) SwapFee(delta0, delta1 sdkmath.Int, feeRate int64) sdkmath.Int {
	volume := delta0.Abs().Add(delta1.Abs())
	return volume.MulRaw(feeRate).QuoRaw(l.params.FeeDenominator)
}

// RecordFee accrues a fee amount for the participant in the pool. It is a
// no-op when the participant has no active strategy or the amount is not
// positive. Returns true when the accrual was recorded.
func (l *Ledger) RecordFee(participant types.Participant, pool types.PoolID, amount sdkmath.Int) bool {
	if amount.IsNil() || !amount.IsPositive() {
		return false
	}
	if !l.strategies.IsActive(participant) {
		return false
	}

	l.mu.Lock()
	key := accountKey{participant, pool}
	acc, ok := l.accounts[key]
	if !ok {
		acc = &types.FeeAccount{
			Participant:     participant,
			PoolID:          pool,
			TotalFeesEarned: sdkmath.ZeroInt(),
			PendingCompound: sdkmath.ZeroInt(),
		}
		l.accounts[key] = acc
	}
	acc.TotalFeesEarned = acc.TotalFeesEarned.Add(amount)
	acc.PendingCompound = acc.PendingCompound.Add(amount)
	acc.LastCollection = l.nowFn()
	snap := *acc
	l.mu.Unlock()

	l.log.Debug().
		Str("event", "FeesAccrued").
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Str("amount", amount.String()).
		Str("pending", snap.PendingCompound.String()).
		Msg("Fees accrued")
	metrics.FeesAccrued.Inc()

	l.persistAccount(snap)
	return true
}

// ConsumePending atomically reads and zeroes the participant's pending
// amount. Used exclusively by the batch executor; the pending balance is
// zeroed before the deposit is attempted.
func (l *Ledger) ConsumePending(participant types.Participant, pool types.PoolID) sdkmath.Int {
	l.mu.Lock()
	acc, ok := l.accounts[accountKey{participant, pool}]
	if !ok || acc.PendingCompound.IsZero() {
		l.mu.Unlock()
		return sdkmath.ZeroInt()
	}
	amount := acc.PendingCompound
	acc.PendingCompound = sdkmath.ZeroInt()
	snap := *acc
	l.mu.Unlock()

	l.persistAccount(snap)
	return amount
}

// Get returns a copy of the fee account for the pair.
func (l *Ledger) Get(participant types.Participant, pool types.PoolID) (types.FeeAccount, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[accountKey{participant, pool}]
	if !ok {
		return types.FeeAccount{}, false
	}
	return *acc, true
}

// Pending returns the participant's pending-compound amount in the pool.
func (l *Ledger) Pending(participant types.Participant, pool types.PoolID) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[accountKey{participant, pool}]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return acc.PendingCompound
}

func (l *Ledger) persistAccount(acc types.FeeAccount) {
	if l.persist == nil {
		return
	}
	if err := l.persist.SaveFeeAccount(acc); err != nil {
		l.log.Error().Err(err).
			Str("participant", string(acc.Participant)).
			Uint64("pool", uint64(acc.PoolID)).
			Msg("Failed to persist fee account")
	}
}
