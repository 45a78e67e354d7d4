/*

This file contains the tunable parameters governing the batch-compounding
policy. Parameters are versioned in the database; the defaults live in the
config package.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CompoundParameters controls when pending fees become eligible for
// compounding and when a pool's queue is flushed.
type CompoundParameters struct {
	// Eligibility
	MinCompoundAmount sdkmath.Int       `json:"min_compound_amount"` // Smallest pending amount worth compounding
	MaxOverheadPrice  sdkmath.LegacyDec `json:"max_overhead_price"`  // Upper bound for participant price ceilings
	MinActionInterval time.Duration     `json:"min_action_interval"` // Minimum time between compounds per participant

	// Batch triggers
	MinBatchSize int           `json:"min_batch_size"` // Entries needed for the price-gated trigger
	MaxBatchSize int           `json:"max_batch_size"` // Hard cap, flushes regardless of price
	MaxBatchWait time.Duration `json:"max_batch_wait"` // No entry waits longer than this

	// Fee policy
	FeeDenominator int64 `json:"fee_denominator"` // Pool fee rates are expressed in these units

	// Overhead cost model
	SoloOverheadGas          int64 `json:"solo_overhead_gas"`            // Gas of a standalone compound transaction
	BatchOverheadGasBase     int64 `json:"batch_overhead_gas_base"`      // Fixed gas of a batch settlement
	BatchOverheadGasPerEntry int64 `json:"batch_overhead_gas_per_entry"` // Marginal gas per batched entry
}

// BatchGas returns the modeled gas usage of a batch with n entries.
func (p CompoundParameters) BatchGas(n int) int64 {
	return p.BatchOverheadGasBase + p.BatchOverheadGasPerEntry*int64(n)
}
