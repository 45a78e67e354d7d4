/*

This is a custom type for participant and pool strategies which contains all the state
needed for deciding when a participant's accrued fees may be compounded.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type PoolID uint64

// Participant is a venue account address that supplies liquidity.
type Participant string

// ParticipantStrategy is a participant's global auto-compound profile.
// A participant has at most one strategy regardless of how many pools
// they provide liquidity to. Records are never deleted; IsActive toggles
// false on exit and history is retained.
type ParticipantStrategy struct {
	Participant          Participant       `json:"participant"`
	Pool                 PoolID            `json:"pool"` // The pool named at activation; keys the active list
	IsActive             bool              `json:"is_active"`
	TotalDeposited       sdkmath.Int       `json:"total_deposited"`  // Lifetime liquidity deposited through compounding
	TotalCompounded      sdkmath.Int       `json:"total_compounded"` // Lifetime fee amount reinvested
	LastCompound         time.Time         `json:"last_compound"`
	OverheadPriceCeiling sdkmath.LegacyDec `json:"overhead_price_ceiling"` // Max per-unit settlement cost the participant accepts
	RiskLevel            int               `json:"risk_level"`             // 1 (conservative) to 10 (aggressive)
}

// PoolStrategy tracks per-pool aggregate compounding state. One instance per
// pool for the system's lifetime, created on the pool-created notification.
type PoolStrategy struct {
	PoolID            PoolID      `json:"pool_id"`
	FeeRate           int64       `json:"fee_rate"` // Swap fee in FeeDenominator units (e.g. basis points)
	TotalParticipants int         `json:"total_participants"`
	TotalValueLocked  sdkmath.Int `json:"total_value_locked"`
	LastCompound      time.Time   `json:"last_compound"`
	IsActive          bool        `json:"is_active"`
}
