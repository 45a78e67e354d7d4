/*

This file contains the fee accounting types. One FeeAccount exists per
(participant, pool) pair. PendingCompound never exceeds TotalFeesEarned.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// FeeAccount is the accrual record for one participant in one pool.
type FeeAccount struct {
	Participant     Participant `json:"participant"`
	PoolID          PoolID      `json:"pool_id"`
	TotalFeesEarned sdkmath.Int `json:"total_fees_earned"` // Lifetime, monotonic
	PendingCompound sdkmath.Int `json:"pending_compound"`  // Reset to zero on successful compound
	LastCollection  time.Time   `json:"last_collection"`
}

// PendingCompound is a queued, not-yet-executed compound instruction.
// Immutable once enqueued; consumed exactly once by a flush.
type PendingCompound struct {
	Participant  Participant       `json:"participant"`
	PoolID       PoolID            `json:"pool_id"`
	Amount       sdkmath.Int       `json:"amount"` // Pending fee amount at enqueue time
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	PriceCeiling sdkmath.LegacyDec `json:"price_ceiling"` // Participant's ceiling, snapshotted at enqueue
}

// OverheadAccount is a participant's running settlement-cost ledger. Assumed
// accumulates what the same compounds would have cost as standalone
// transactions; Actual accumulates the batched shares actually credited.
// The difference is the participant's estimated savings from batching.
type OverheadAccount struct {
	Participant     Participant `json:"participant"`
	ActualOverhead  sdkmath.Int `json:"actual_overhead"`
	AssumedOverhead sdkmath.Int `json:"assumed_overhead"`
	CompoundCount   int         `json:"compound_count"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
