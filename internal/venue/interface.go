package venue

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// Venue defines the interface for the trading-venue engine's settlement
// capabilities. This interface abstracts away the specific venue deployment,
// allowing for different implementations (live, simulation, test stubs).
type Venue interface {
	// DepositLiquidity converts a participant's accrued fee amount back into
	// pooled liquidity. A failed deposit is returned as a result with
	// Success=false (or an error for transport failures); the caller treats
	// both the same way and never retries within the same flush.
	DepositLiquidity(participant types.Participant, pool types.PoolID, amount sdkmath.Int) (*types.DepositResult, error)

	// OverheadPrice returns the current per-gas-unit settlement cost on the
	// underlying ledger.
	OverheadPrice() (sdkmath.LegacyDec, error)

	// Close cleans up any resources used by the venue client.
	Close() error
}
