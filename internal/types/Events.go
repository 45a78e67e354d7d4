/*

This file contains the inbound notification types emitted by the trading
venue engine. The event stream decodes these from the venue websocket feed
and the ingestor translates them into ledger and scheduler calls.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type VenueEventKind string

const (
	EventPoolInitialized  VenueEventKind = "POOL_INITIALIZED"
	EventSwap             VenueEventKind = "SWAP"
	EventLiquidityAdded   VenueEventKind = "LIQUIDITY_ADDED"
	EventLiquidityRemoved VenueEventKind = "LIQUIDITY_REMOVED"
)

// VenueEvent is one notification from the venue engine. Fields are populated
// depending on Kind: swaps carry both leg deltas, liquidity changes carry a
// single unsigned delta, pool initialization carries the fee rate.
type VenueEvent struct {
	Kind        VenueEventKind `json:"kind"`
	PoolID      PoolID         `json:"pool_id"`
	Participant Participant    `json:"participant,omitempty"`
	Delta0      sdkmath.Int    `json:"delta0,omitempty"`    // SWAP: signed magnitude of leg 0
	Delta1      sdkmath.Int    `json:"delta1,omitempty"`    // SWAP: signed magnitude of leg 1
	Delta       sdkmath.Int    `json:"delta,omitempty"`     // LIQUIDITY_ADDED / LIQUIDITY_REMOVED
	FeeRate     int64          `json:"fee_rate,omitempty"`  // POOL_INITIALIZED
	Timestamp   time.Time      `json:"timestamp,omitempty"` // Venue-side event time, informational
}
