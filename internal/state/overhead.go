// ./internal/state/overhead.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// CreditOverhead adds one compound's actual and assumed overhead to the
// participant's running ledger.
func CreditOverhead(participant types.Participant, actual, assumed sdkmath.Int, at time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO overhead_ledger (
			participant, actual_overhead, assumed_overhead, compound_count, updated_at
		) VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (participant) DO UPDATE SET
			actual_overhead = overhead_ledger.actual_overhead + EXCLUDED.actual_overhead,
			assumed_overhead = overhead_ledger.assumed_overhead + EXCLUDED.assumed_overhead,
			compound_count = overhead_ledger.compound_count + 1,
			updated_at = EXCLUDED.updated_at
	`
	_, err := DB.Exec(query, string(participant), actual.String(), assumed.String(), at)
	if err != nil {
		return fmt.Errorf("failed to credit overhead ledger: %w", err)
	}
	return nil
}

// GetOverheadAccount reads one participant's overhead ledger row. Participants
// who never compounded get a zeroed account, not an error.
func GetOverheadAccount(participant types.Participant) (types.OverheadAccount, error) {
	acc := types.OverheadAccount{
		Participant:     participant,
		ActualOverhead:  sdkmath.ZeroInt(),
		AssumedOverhead: sdkmath.ZeroInt(),
	}
	if DB == nil {
		return acc, fmt.Errorf("database not initialized")
	}

	var actual, assumed string
	query := `
		SELECT actual_overhead, assumed_overhead, compound_count, updated_at
		FROM overhead_ledger
		WHERE participant = $1
	`
	err := DB.QueryRow(query, string(participant)).Scan(&actual, &assumed, &acc.CompoundCount, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return acc, nil
	}
	if err != nil {
		return acc, fmt.Errorf("failed to query overhead ledger: %w", err)
	}
	if acc.ActualOverhead, err = parseInt(actual); err != nil {
		return acc, err
	}
	if acc.AssumedOverhead, err = parseInt(assumed); err != nil {
		return acc, err
	}
	return acc, nil
}

// GetOverheadSavings returns a participant's estimated batching savings: what
// their compounds would have cost standalone minus what they actually paid.
func GetOverheadSavings(participant types.Participant) (sdkmath.Int, error) {
	acc, err := GetOverheadAccount(participant)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return acc.AssumedOverhead.Sub(acc.ActualOverhead), nil
}
