/*

This file contains the live venue client. Deposits and overhead price quotes
go over the venue engine's HTTP settlement API. The overhead price is cached
briefly because the scheduler consults it on every enqueue.

*/

package venue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/types"
)

const (
	requestTimeout = 10 * time.Second
	priceCacheTTL  = 5 * time.Second
)

// Client is the live Venue implementation over the engine's HTTP API.
type Client struct {
	log     zerolog.Logger
	baseURL string
	http    *http.Client

	priceMu      sync.Mutex
	cachedPrice  sdkmath.LegacyDec
	priceFetched time.Time
}

var _ Venue = (*Client)(nil)

// NewClient creates a venue client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		log:     logger.GetForComponent("venue_client"),
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type depositRequest struct {
	Participant types.Participant `json:"participant"`
	PoolID      types.PoolID      `json:"pool_id"`
	Amount      sdkmath.Int       `json:"amount"`
}

// DepositLiquidity submits a deposit-converted-fees request to the venue.
func (c *Client) DepositLiquidity(participant types.Participant, pool types.PoolID, amount sdkmath.Int) (*types.DepositResult, error) {
	body, err := json.Marshal(depositRequest{Participant: participant, PoolID: pool, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("failed to encode deposit request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/v1/deposits", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deposit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deposit request returned status %d", resp.StatusCode)
	}

	var result types.DepositResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode deposit result: %w", err)
	}

	c.log.Debug().
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Str("amount", amount.String()).
		Str("txHash", result.TxHash).
		Bool("success", result.Success).
		Msg("Deposit submitted")

	return &result, nil
}

type overheadPriceResponse struct {
	Price sdkmath.LegacyDec `json:"price"`
}

// OverheadPrice returns the current per-gas-unit settlement cost, cached for
// a few seconds.
func (c *Client) OverheadPrice() (sdkmath.LegacyDec, error) {
	c.priceMu.Lock()
	defer c.priceMu.Unlock()

	if !c.cachedPrice.IsNil() && time.Since(c.priceFetched) < priceCacheTTL {
		return c.cachedPrice, nil
	}

	resp, err := c.http.Get(c.baseURL + "/v1/overhead-price")
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("overhead price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sdkmath.LegacyDec{}, fmt.Errorf("overhead price request returned status %d", resp.StatusCode)
	}

	var payload overheadPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("failed to decode overhead price: %w", err)
	}
	if payload.Price.IsNil() || payload.Price.IsNegative() {
		return sdkmath.LegacyDec{}, fmt.Errorf("venue returned invalid overhead price")
	}

	c.cachedPrice = payload.Price
	c.priceFetched = time.Now()
	return c.cachedPrice, nil
}

// Close releases the client's resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
