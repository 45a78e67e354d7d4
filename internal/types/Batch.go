/*

This file contains the types describing an executed batch: the per-entry
results and the receipt persisted for every flush, single compound and
emergency compound.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BatchTrigger names the condition that caused a flush.
type BatchTrigger string

const (
	TriggerSizeAndPrice BatchTrigger = "SIZE_AND_PRICE" // MinBatchSize reached and price below mean ceiling
	TriggerMaxWait      BatchTrigger = "MAX_WAIT"       // Oldest entry exceeded MaxBatchWait
	TriggerSizeCap      BatchTrigger = "SIZE_CAP"       // Hard MaxBatchSize cap, price-independent
	TriggerForced       BatchTrigger = "FORCED"         // Administrative forceFlush
	TriggerSolo         BatchTrigger = "SOLO"           // Single-user immediate compound
	TriggerEmergency    BatchTrigger = "EMERGENCY"      // User-initiated override
)

// CompoundEntryResult is the outcome of one request within a batch. A failed
// deposit does not abort the batch; the entry is recorded and the flush
// proceeds to the next one.
type CompoundEntryResult struct {
	Participant   Participant `json:"participant"`
	Amount        sdkmath.Int `json:"amount"` // Amount consumed from the fee ledger
	Success       bool        `json:"success"`
	Message       string      `json:"message,omitempty"`
	TxHash        string      `json:"tx_hash,omitempty"`
	OverheadShare sdkmath.Int `json:"overhead_share"` // This participant's slice of the batch overhead cost
}

// BatchReceipt records everything about one settlement operation.
type BatchReceipt struct {
	ReceiptID        int64                 `json:"receipt_id,omitempty"` // Auto-incremented by DB
	BatchID          string                `json:"batch_id"`             // UUID for tracing logs across the flush
	BatchNumber      int                   `json:"batch_number"`         // Persistent global counter
	PoolID           PoolID                `json:"pool_id"`
	Timestamp        time.Time             `json:"timestamp"`
	Trigger          BatchTrigger          `json:"trigger"`
	ParticipantCount int                   `json:"participant_count"`
	TotalAmount      sdkmath.Int           `json:"total_amount"`
	GasUsed          int64                 `json:"gas_used"`
	OverheadPrice    sdkmath.LegacyDec     `json:"overhead_price"`
	OverheadCost     sdkmath.Int           `json:"overhead_cost"`
	Entries          []CompoundEntryResult `json:"entries"`
}

// DepositResult contains the venue's response to a deposit-liquidity call.
type DepositResult struct {
	TxHash       string `json:"tx_hash"`
	GasUsed      int64  `json:"gas_used"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
