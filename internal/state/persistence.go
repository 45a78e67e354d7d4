// ./internal/state/persistence.go
package state

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// Persistence adapts the package-level database functions to the write-through
// interfaces the in-memory stores and the executor accept. A nil persister
// keeps those components fully in-memory, which the tests rely on.
type Persistence struct{}

func (Persistence) SaveParticipantStrategy(st types.ParticipantStrategy) error {
	return SaveParticipantStrategy(st)
}

func (Persistence) SavePoolStrategy(p types.PoolStrategy) error {
	return SavePoolStrategy(p)
}

func (Persistence) SaveFeeAccount(acc types.FeeAccount) error {
	return SaveFeeAccount(acc)
}

func (Persistence) NextBatchNumber() (int, error) {
	return IncrementBatchNumber()
}

func (Persistence) SaveBatchReceipt(r types.BatchReceipt) (int64, error) {
	return SaveBatchReceipt(r)
}

func (Persistence) CreditOverhead(participant types.Participant, actual, assumed sdkmath.Int, at time.Time) error {
	return CreditOverhead(participant, actual, assumed, at)
}
