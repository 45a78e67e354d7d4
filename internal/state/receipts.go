// ./internal/state/receipts.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"

	"github.com/elys-network/acm/internal/types"
)

// SaveBatchReceipt persists one settlement receipt and returns its ID.
func SaveBatchReceipt(r types.BatchReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	entriesJSON, err := json.Marshal(r.Entries)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal batch entries: %w", err)
	}

	participants := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		participants = append(participants, string(e.Participant))
	}

	query := `
		INSERT INTO batch_receipts (
			batch_id, batch_number, pool_id, batch_timestamp, trigger_condition,
			participant_count, total_amount, gas_used, overhead_price,
			overhead_cost, participants, entries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING receipt_id
	`
	var receiptID int64
	err = DB.QueryRow(query,
		r.BatchID,
		r.BatchNumber,
		uint64(r.PoolID),
		r.Timestamp,
		string(r.Trigger),
		r.ParticipantCount,
		r.TotalAmount.String(),
		r.GasUsed,
		r.OverheadPrice.String(),
		r.OverheadCost.String(),
		pq.Array(participants),
		entriesJSON,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save batch receipt: %w", err)
	}
	return receiptID, nil
}

func scanReceipt(rows *sql.Rows) (types.BatchReceipt, error) {
	var (
		r           types.BatchReceipt
		poolID      uint64
		trigger     string
		total       string
		price, cost string
		entriesJSON []byte
	)
	err := rows.Scan(&r.ReceiptID, &r.BatchID, &r.BatchNumber, &poolID, &r.Timestamp,
		&trigger, &r.ParticipantCount, &total, &r.GasUsed, &price, &cost, &entriesJSON)
	if err != nil {
		return r, fmt.Errorf("failed to scan batch receipt: %w", err)
	}
	r.PoolID = types.PoolID(poolID)
	r.Trigger = types.BatchTrigger(trigger)
	if r.TotalAmount, err = parseInt(total); err != nil {
		return r, err
	}
	if r.OverheadPrice, err = parseDec(price); err != nil {
		return r, err
	}
	if r.OverheadCost, err = parseInt(cost); err != nil {
		return r, err
	}
	if len(entriesJSON) > 0 {
		if err := json.Unmarshal(entriesJSON, &r.Entries); err != nil {
			return r, fmt.Errorf("failed to unmarshal batch entries: %w", err)
		}
	}
	return r, nil
}

const receiptColumns = `
	receipt_id, batch_id, batch_number, pool_id, batch_timestamp,
	trigger_condition, participant_count, total_amount, gas_used,
	overhead_price, overhead_cost, entries
`

// GetRecentBatchReceipts returns the most recent receipts, newest first.
func GetRecentBatchReceipts(limit int) ([]types.BatchReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + receiptColumns + `
		FROM batch_receipts
		ORDER BY batch_timestamp DESC
		LIMIT $1`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch receipts: %w", err)
	}
	defer rows.Close()

	var out []types.BatchReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetBatchReceiptsForPool returns a pool's receipts, newest first.
func GetBatchReceiptsForPool(pool types.PoolID, limit int) ([]types.BatchReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + receiptColumns + `
		FROM batch_receipts
		WHERE pool_id = $1
		ORDER BY batch_timestamp DESC
		LIMIT $2`
	rows, err := DB.Query(query, uint64(pool), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch receipts for pool: %w", err)
	}
	defer rows.Close()

	var out []types.BatchReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetBatchReceiptsForParticipant returns receipts containing the participant,
// newest first. Membership uses the indexed participants array column.
func GetBatchReceiptsForParticipant(participant types.Participant, limit int) ([]types.BatchReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + receiptColumns + `
		FROM batch_receipts
		WHERE $1 = ANY(participants)
		ORDER BY batch_timestamp DESC
		LIMIT $2`
	rows, err := DB.Query(query, string(participant), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch receipts for participant: %w", err)
	}
	defer rows.Close()

	var out []types.BatchReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BatchMetrics summarizes settlement activity over a trailing window.
type BatchMetrics struct {
	WindowStart      time.Time      `json:"window_start"`
	BatchCount       int            `json:"batch_count"`
	EntryCount       int            `json:"entry_count"`
	TotalCompounded  sdkmath.Int    `json:"total_compounded"`
	TotalGasUsed     int64          `json:"total_gas_used"`
	TotalOverhead    sdkmath.Int    `json:"total_overhead"`
	MeanBatchSize    float64        `json:"mean_batch_size"`
	TriggerBreakdown map[string]int `json:"trigger_breakdown"`
}

// GetBatchMetrics aggregates receipts newer than the given window.
func GetBatchMetrics(window time.Duration) (BatchMetrics, error) {
	m := BatchMetrics{
		TotalCompounded:  sdkmath.ZeroInt(),
		TotalOverhead:    sdkmath.ZeroInt(),
		TriggerBreakdown: make(map[string]int),
	}
	if DB == nil {
		return m, fmt.Errorf("database not initialized")
	}
	m.WindowStart = time.Now().Add(-window)

	query := `
		SELECT trigger_condition, participant_count, total_amount, gas_used, overhead_cost
		FROM batch_receipts
		WHERE batch_timestamp >= $1
	`
	rows, err := DB.Query(query, m.WindowStart)
	if err != nil {
		return m, fmt.Errorf("failed to query batch metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trigger     string
			entryCount  int
			total, cost string
			gasUsed     int64
		)
		if err := rows.Scan(&trigger, &entryCount, &total, &gasUsed, &cost); err != nil {
			return m, fmt.Errorf("failed to scan batch metrics row: %w", err)
		}
		totalAmt, err := parseInt(total)
		if err != nil {
			return m, err
		}
		costAmt, err := parseInt(cost)
		if err != nil {
			return m, err
		}
		m.BatchCount++
		m.EntryCount += entryCount
		m.TotalCompounded = m.TotalCompounded.Add(totalAmt)
		m.TotalGasUsed += gasUsed
		m.TotalOverhead = m.TotalOverhead.Add(costAmt)
		m.TriggerBreakdown[trigger]++
	}
	if err := rows.Err(); err != nil {
		return m, err
	}
	if m.BatchCount > 0 {
		m.MeanBatchSize = float64(m.EntryCount) / float64(m.BatchCount)
	}
	return m, nil
}
