/*

This file contains the default compounding parameters for the ACM.

These parameters are calibrated for a production venue with many small
liquidity providers. Each value balances responsiveness against the fixed
settlement overhead that batching exists to amortize.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// DefaultCompoundParameters provides a baseline policy for the batch
// scheduler. These values are used if no active parameters are found in the
// database during initialization.
var DefaultCompoundParameters = types.CompoundParameters{
	MinCompoundAmount: sdkmath.NewInt(25_000000), // 25 USDC at 6 decimals.
	// Rationale: below this, a participant's share of even a fully amortized
	// batch overhead eats a meaningful fraction of the reinvested amount.

	MaxOverheadPrice: sdkmath.LegacyNewDec(100), // Upper bound for participant ceilings.
	// Rationale: a ceiling above this is a typo, not a preference. Rejecting it
	// at activation time beats silently never compounding.

	MinActionInterval: 1 * time.Hour, // Minimum time between compounds per participant.
	// Rationale: compounding more often than hourly yields negligible extra
	// APR while multiplying settlement load on the venue.

	MinBatchSize: 5, // Entries needed before the price-gated trigger fires.
	// Rationale: amortizing the fixed batch gas over fewer than 5 entries
	// saves little versus solo compounds.

	MaxBatchSize: 50, // Hard cap, flushes regardless of overhead price.
	// Rationale: keeps a single settlement transaction within the venue's
	// per-transaction gas limit.

	MaxBatchWait: 24 * time.Hour, // Staleness bound for queued requests.
	// Rationale: even if a pool never attracts a second participant, a queued
	// request must not sit for more than a day.

	FeeDenominator: 10000, // Pool fee rates are expressed in basis points.

	// --- Overhead Cost Model ---
	// Gas figures measured against the venue's settlement module: a standalone
	// compound pays full transaction overhead; batched entries share the base
	// and add only their marginal deposit cost.
	SoloOverheadGas:          600_000,
	BatchOverheadGasBase:     400_000,
	BatchOverheadGasPerEntry: 150_000,
}
