// ./internal/state/params_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/acm/internal/types"
)

// SaveCompoundParameters stores a new version of the named configuration and
// marks it active, deactivating any previous version in one transaction.
func SaveCompoundParameters(configName string, p types.CompoundParameters) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var nextVersion int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(version), 0) + 1
		FROM compound_parameters
		WHERE config_name = $1
	`, configName).Scan(&nextVersion)
	if err != nil {
		return fmt.Errorf("failed to determine next parameter version: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE compound_parameters
		SET is_active = FALSE
		WHERE config_name = $1 AND is_active = TRUE
	`, configName)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous parameters: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO compound_parameters (
			version, config_name, is_active, activated_at,
			min_compound_amount, max_overhead_price, min_action_interval_seconds,
			min_batch_size, max_batch_size, max_batch_wait_seconds,
			fee_denominator, solo_overhead_gas, batch_overhead_gas_base,
			batch_overhead_gas_per_entry
		) VALUES ($1, $2, TRUE, CURRENT_TIMESTAMP, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		nextVersion,
		configName,
		p.MinCompoundAmount.String(),
		p.MaxOverheadPrice.String(),
		int64(p.MinActionInterval/time.Second),
		p.MinBatchSize,
		p.MaxBatchSize,
		int64(p.MaxBatchWait/time.Second),
		p.FeeDenominator,
		p.SoloOverheadGas,
		p.BatchOverheadGasBase,
		p.BatchOverheadGasPerEntry,
	)
	if err != nil {
		return fmt.Errorf("failed to insert compound parameters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parameter save: %w", err)
	}

	log.Info().Str("config_name", configName).Int("version", nextVersion).
		Msg("Saved new compound parameter version")
	return nil
}

// LoadActiveCompoundParameters returns the active version of the named
// configuration, or defaults (saved as version 1) when none exists yet.
func LoadActiveCompoundParameters(configName string, defaults types.CompoundParameters) (types.CompoundParameters, error) {
	if DB == nil {
		return defaults, fmt.Errorf("database not initialized")
	}

	var (
		p               types.CompoundParameters
		minAmount       string
		maxPrice        string
		intervalSeconds int64
		waitSeconds     int64
	)
	err := DB.QueryRow(`
		SELECT min_compound_amount, max_overhead_price, min_action_interval_seconds,
		       min_batch_size, max_batch_size, max_batch_wait_seconds,
		       fee_denominator, solo_overhead_gas, batch_overhead_gas_base,
		       batch_overhead_gas_per_entry
		FROM compound_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1
	`, configName).Scan(
		&minAmount, &maxPrice, &intervalSeconds,
		&p.MinBatchSize, &p.MaxBatchSize, &waitSeconds,
		&p.FeeDenominator, &p.SoloOverheadGas, &p.BatchOverheadGasBase,
		&p.BatchOverheadGasPerEntry,
	)
	if err == sql.ErrNoRows {
		log.Info().Str("config_name", configName).
			Msg("No active compound parameters found, seeding defaults")
		if saveErr := SaveCompoundParameters(configName, defaults); saveErr != nil {
			return defaults, fmt.Errorf("failed to seed default parameters: %w", saveErr)
		}
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("failed to load compound parameters: %w", err)
	}

	if p.MinCompoundAmount, err = parseInt(minAmount); err != nil {
		return defaults, err
	}
	if p.MaxOverheadPrice, err = parseDec(maxPrice); err != nil {
		return defaults, err
	}
	p.MinActionInterval = time.Duration(intervalSeconds) * time.Second
	p.MaxBatchWait = time.Duration(waitSeconds) * time.Second
	return p, nil
}
