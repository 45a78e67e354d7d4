// ./internal/state/batch_counter.go
package state

import (
	"fmt"
)

// GetCurrentBatchNumber retrieves the current batch number from the database.
func GetCurrentBatchNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var batchNumber int
	query := `SELECT current_batch FROM batch_counter WHERE id = 1`
	err := DB.QueryRow(query).Scan(&batchNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to get current batch number: %w", err)
	}
	return batchNumber, nil
}

// IncrementBatchNumber atomically increments and returns the new batch number.
func IncrementBatchNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var newBatchNumber int
	query := `
		UPDATE batch_counter
		SET current_batch = current_batch + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_batch
	`
	err := DB.QueryRow(query).Scan(&newBatchNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to increment batch number: %w", err)
	}
	return newBatchNumber, nil
}
