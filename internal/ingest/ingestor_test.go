package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/scheduler"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
)

type stubVenue struct {
	mu    sync.Mutex
	price sdkmath.LegacyDec
}

func (v *stubVenue) OverheadPrice() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.price, nil
}

func (v *stubVenue) DepositLiquidity(participant types.Participant, pool types.PoolID, amount sdkmath.Int) (*types.DepositResult, error) {
	return &types.DepositResult{Success: true, TxHash: "0xstub"}, nil
}

func (v *stubVenue) Close() error { return nil }

type noopFlusher struct{}

func (noopFlusher) ExecuteBatch(pool types.PoolID, entries []types.PendingCompound, trigger types.BatchTrigger) (*types.BatchReceipt, error) {
	return &types.BatchReceipt{PoolID: pool, Trigger: trigger}, nil
}

type fixture struct {
	params types.CompoundParameters
	store  *strategy.Store
	ledger *ledger.Ledger
	sched  *scheduler.Scheduler
	in     *Ingestor
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		params: types.CompoundParameters{
			MinCompoundAmount: sdkmath.NewInt(100),
			MaxOverheadPrice:  sdkmath.LegacyNewDec(100),
			MinActionInterval: time.Hour,
			MinBatchSize:      5,
			MaxBatchSize:      50,
			MaxBatchWait:      24 * time.Hour,
			FeeDenominator:    10000,
		},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	vn := &stubVenue{price: sdkmath.LegacyNewDec(1)}
	f.store = strategy.NewStore(&f.params, nil)
	f.ledger = ledger.NewLedger(&f.params, f.store, nil)
	f.sched = scheduler.New(&f.params, f.store, f.ledger, vn, noopFlusher{})
	f.in = New(f.store, f.ledger, f.sched)

	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.ledger.SetClock(clock)
	f.sched.SetClock(clock)

	f.in.Start(context.Background())
	t.Cleanup(f.in.Stop)
	return f
}

func TestPoolInitializedRegistersPool(t *testing.T) {
	f := newFixture(t)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventPoolInitialized, PoolID: 7, FeeRate: 30})

	require.Eventually(t, func() bool {
		_, ok := f.store.GetPool(7)
		return ok
	}, time.Second, 5*time.Millisecond)

	pool, _ := f.store.GetPool(7)
	require.Equal(t, int64(30), pool.FeeRate)
	require.True(t, pool.IsActive)
}

func TestSwapAccruesFeesAndSchedules(t *testing.T) {
	f := newFixture(t)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventPoolInitialized, PoolID: 1, FeeRate: 30})
	require.Eventually(t, func() bool {
		_, ok := f.store.GetPool(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	_, err := f.store.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)

	// fee = (100000 + 99000) * 30 / 10000 = 597, above the 100 minimum.
	f.in.Dispatch(types.VenueEvent{
		Kind:        types.EventSwap,
		PoolID:      1,
		Participant: "alice",
		Delta0:      sdkmath.NewInt(-100_000),
		Delta1:      sdkmath.NewInt(99_000),
	})

	require.Eventually(t, func() bool {
		return f.sched.QueueSize(1) == 1
	}, time.Second, 5*time.Millisecond)

	acc, found := f.ledger.Get("alice", 1)
	require.True(t, found)
	require.Equal(t, sdkmath.NewInt(597), acc.TotalFeesEarned)
}

func TestSwapForInactiveParticipantIgnored(t *testing.T) {
	f := newFixture(t)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventPoolInitialized, PoolID: 1, FeeRate: 30})
	f.in.Dispatch(types.VenueEvent{
		Kind:        types.EventSwap,
		PoolID:      1,
		Participant: "mallory",
		Delta0:      sdkmath.NewInt(1_000_000),
		Delta1:      sdkmath.NewInt(-990_000),
	})

	// Events for pool 1 are handled in order by one worker, so a registered
	// pool implies the swap was already processed.
	require.Eventually(t, func() bool {
		_, ok := f.store.GetPool(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	_, found := f.ledger.Get("mallory", 1)
	require.False(t, found)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestLiquidityChangesAdjustTVL(t *testing.T) {
	f := newFixture(t)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventPoolInitialized, PoolID: 1, FeeRate: 30})
	require.Eventually(t, func() bool {
		_, ok := f.store.GetPool(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	_, err := f.store.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventLiquidityAdded, PoolID: 1, Participant: "alice", Delta: sdkmath.NewInt(5000)})
	require.Eventually(t, func() bool {
		p, _ := f.store.GetPool(1)
		return p.TotalValueLocked.Equal(sdkmath.NewInt(5000))
	}, time.Second, 5*time.Millisecond)

	f.in.Dispatch(types.VenueEvent{Kind: types.EventLiquidityRemoved, PoolID: 1, Participant: "alice", Delta: sdkmath.NewInt(2000)})
	require.Eventually(t, func() bool {
		p, _ := f.store.GetPool(1)
		return p.TotalValueLocked.Equal(sdkmath.NewInt(3000))
	}, time.Second, 5*time.Millisecond)

	// Changes by participants without a strategy do not move tracked TVL.
	f.in.Dispatch(types.VenueEvent{Kind: types.EventLiquidityAdded, PoolID: 1, Participant: "mallory", Delta: sdkmath.NewInt(9999)})
	f.in.Dispatch(types.VenueEvent{Kind: types.EventLiquidityRemoved, PoolID: 1, Participant: "alice", Delta: sdkmath.NewInt(1000)})
	require.Eventually(t, func() bool {
		p, _ := f.store.GetPool(1)
		return p.TotalValueLocked.Equal(sdkmath.NewInt(2000))
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchAfterStopIsDropped(t *testing.T) {
	f := newFixture(t)
	f.in.Stop()

	// Must not panic or block.
	f.in.Dispatch(types.VenueEvent{Kind: types.EventPoolInitialized, PoolID: 3, FeeRate: 30})
	_, ok := f.store.GetPool(3)
	require.False(t, ok)
}
