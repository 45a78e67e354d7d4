// ./internal/state/stores.go
package state

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// parseInt converts a NUMERIC column value back into an sdkmath.Int.
func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer value %q", s)
	}
	return v, nil
}

// parseDec converts a DECIMAL column value back into an sdkmath.LegacyDec.
func parseDec(s string) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("invalid decimal value %q: %w", s, err)
	}
	return v, nil
}

// SaveParticipantStrategy upserts one participant's strategy row.
func SaveParticipantStrategy(st types.ParticipantStrategy) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO participant_strategies (
			participant, pool_id, is_active, total_deposited, total_compounded,
			last_compound, overhead_price_ceiling, risk_level, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (participant) DO UPDATE SET
			pool_id = EXCLUDED.pool_id,
			is_active = EXCLUDED.is_active,
			total_deposited = EXCLUDED.total_deposited,
			total_compounded = EXCLUDED.total_compounded,
			last_compound = EXCLUDED.last_compound,
			overhead_price_ceiling = EXCLUDED.overhead_price_ceiling,
			risk_level = EXCLUDED.risk_level,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.Exec(query,
		string(st.Participant),
		uint64(st.Pool),
		st.IsActive,
		st.TotalDeposited.String(),
		st.TotalCompounded.String(),
		st.LastCompound,
		st.OverheadPriceCeiling.String(),
		st.RiskLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to save participant strategy: %w", err)
	}
	return nil
}

// LoadParticipantStrategies reads every participant strategy row.
func LoadParticipantStrategies() ([]types.ParticipantStrategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT participant, pool_id, is_active, total_deposited, total_compounded,
		       last_compound, overhead_price_ceiling, risk_level
		FROM participant_strategies
	`
	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query participant strategies: %w", err)
	}
	defer rows.Close()

	var out []types.ParticipantStrategy
	for rows.Next() {
		var (
			st                types.ParticipantStrategy
			participant       string
			poolID            uint64
			deposited, comped string
			ceiling           string
		)
		err := rows.Scan(&participant, &poolID, &st.IsActive, &deposited, &comped,
			&st.LastCompound, &ceiling, &st.RiskLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant strategy: %w", err)
		}
		st.Participant = types.Participant(participant)
		st.Pool = types.PoolID(poolID)
		if st.TotalDeposited, err = parseInt(deposited); err != nil {
			return nil, err
		}
		if st.TotalCompounded, err = parseInt(comped); err != nil {
			return nil, err
		}
		if st.OverheadPriceCeiling, err = parseDec(ceiling); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SavePoolStrategy upserts one pool's strategy row.
func SavePoolStrategy(p types.PoolStrategy) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO pool_strategies (
			pool_id, fee_rate, total_participants, total_value_locked,
			last_compound, is_active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (pool_id) DO UPDATE SET
			fee_rate = EXCLUDED.fee_rate,
			total_participants = EXCLUDED.total_participants,
			total_value_locked = EXCLUDED.total_value_locked,
			last_compound = EXCLUDED.last_compound,
			is_active = EXCLUDED.is_active,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.Exec(query,
		uint64(p.PoolID),
		p.FeeRate,
		p.TotalParticipants,
		p.TotalValueLocked.String(),
		p.LastCompound,
		p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool strategy: %w", err)
	}
	return nil
}

// LoadPoolStrategies reads every pool strategy row.
func LoadPoolStrategies() ([]types.PoolStrategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT pool_id, fee_rate, total_participants, total_value_locked,
		       last_compound, is_active
		FROM pool_strategies
	`
	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool strategies: %w", err)
	}
	defer rows.Close()

	var out []types.PoolStrategy
	for rows.Next() {
		var (
			p      types.PoolStrategy
			poolID uint64
			tvl    string
		)
		err := rows.Scan(&poolID, &p.FeeRate, &p.TotalParticipants, &tvl,
			&p.LastCompound, &p.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool strategy: %w", err)
		}
		p.PoolID = types.PoolID(poolID)
		if p.TotalValueLocked, err = parseInt(tvl); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveFeeAccount upserts one (participant, pool) fee accrual row.
func SaveFeeAccount(acc types.FeeAccount) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO fee_accounts (
			participant, pool_id, total_fees_earned, pending_compound,
			last_collection, updated_at
		) VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (participant, pool_id) DO UPDATE SET
			total_fees_earned = EXCLUDED.total_fees_earned,
			pending_compound = EXCLUDED.pending_compound,
			last_collection = EXCLUDED.last_collection,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.Exec(query,
		string(acc.Participant),
		uint64(acc.PoolID),
		acc.TotalFeesEarned.String(),
		acc.PendingCompound.String(),
		acc.LastCollection,
	)
	if err != nil {
		return fmt.Errorf("failed to save fee account: %w", err)
	}
	return nil
}

// LoadFeeAccounts reads every fee account row.
func LoadFeeAccounts() ([]types.FeeAccount, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT participant, pool_id, total_fees_earned, pending_compound, last_collection
		FROM fee_accounts
	`
	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee accounts: %w", err)
	}
	defer rows.Close()

	var out []types.FeeAccount
	for rows.Next() {
		var (
			acc            types.FeeAccount
			participant    string
			poolID         uint64
			total, pending string
			lastCollection time.Time
		)
		err := rows.Scan(&participant, &poolID, &total, &pending, &lastCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee account: %w", err)
		}
		acc.Participant = types.Participant(participant)
		acc.PoolID = types.PoolID(poolID)
		acc.LastCollection = lastCollection
		if acc.TotalFeesEarned, err = parseInt(total); err != nil {
			return nil, err
		}
		if acc.PendingCompound, err = parseInt(pending); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}
