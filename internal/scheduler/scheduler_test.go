package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
)

// stubVenue serves a settable overhead price. Deposits are not exercised by
// scheduler tests.
type stubVenue struct {
	mu       sync.Mutex
	price    sdkmath.LegacyDec
	priceErr error
}

func (v *stubVenue) setPrice(p sdkmath.LegacyDec) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.price = p
}

func (v *stubVenue) OverheadPrice() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.priceErr != nil {
		return sdkmath.LegacyDec{}, v.priceErr
	}
	return v.price, nil
}

func (v *stubVenue) DepositLiquidity(participant types.Participant, pool types.PoolID, amount sdkmath.Int) (*types.DepositResult, error) {
	return &types.DepositResult{Success: true, TxHash: "0xstub"}, nil
}

func (v *stubVenue) Close() error { return nil }

// captureFlusher records every batch handed over by the scheduler.
type captureFlusher struct {
	calls    int
	lastPool types.PoolID
	entries  []types.PendingCompound
	trigger  types.BatchTrigger
}

func (f *captureFlusher) ExecuteBatch(pool types.PoolID, entries []types.PendingCompound, trigger types.BatchTrigger) (*types.BatchReceipt, error) {
	f.calls++
	f.lastPool = pool
	f.entries = entries
	f.trigger = trigger
	return &types.BatchReceipt{PoolID: pool, Trigger: trigger, ParticipantCount: len(entries)}, nil
}

type fixture struct {
	params  types.CompoundParameters
	store   *strategy.Store
	ledger  *ledger.Ledger
	venue   *stubVenue
	flusher *captureFlusher
	sched   *Scheduler
	now     time.Time
}

func newFixture(t *testing.T, params types.CompoundParameters) *fixture {
	t.Helper()
	f := &fixture{
		params:  params,
		venue:   &stubVenue{price: sdkmath.LegacyNewDec(10)},
		flusher: &captureFlusher{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store = strategy.NewStore(&f.params, nil)
	f.ledger = ledger.NewLedger(&f.params, f.store, nil)
	f.sched = New(&f.params, f.store, f.ledger, f.venue, f.flusher)

	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.ledger.SetClock(clock)
	f.sched.SetClock(clock)

	f.store.InitPool(1, 30)
	return f
}

func defaultTestParams() types.CompoundParameters {
	return types.CompoundParameters{
		MinCompoundAmount: sdkmath.NewInt(25),
		MaxOverheadPrice:  sdkmath.LegacyNewDec(100),
		MinActionInterval: time.Hour,
		MinBatchSize:      2,
		MaxBatchSize:      10,
		MaxBatchWait:      24 * time.Hour,
		FeeDenominator:    10000,
	}
}

// join activates a participant and accrues a schedulable pending amount.
func (f *fixture) join(t *testing.T, p types.Participant, ceiling int64, pending int64) {
	t.Helper()
	_, err := f.store.Activate(p, 1, sdkmath.LegacyNewDec(ceiling), 5)
	require.NoError(t, err)
	require.True(t, f.ledger.RecordFee(p, 1, sdkmath.NewInt(pending)))
}

func TestScheduleRejectsWithoutActiveStrategy(t *testing.T) {
	f := newFixture(t, defaultTestParams())

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestScheduleRejectsBelowMinimum(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 10)
	f.now = f.now.Add(2 * time.Hour)

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
	require.Zero(t, f.sched.QueueSize(1))

	// The pending balance is untouched by a rejected schedule.
	require.Equal(t, sdkmath.NewInt(10), f.ledger.Pending("alice", 1))
}

func TestScheduleRejectsPriceAboveCeiling(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)
	f.venue.setPrice(sdkmath.LegacyNewDec(50))

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestScheduleRejectsWhenPriceUnavailable(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)
	f.venue.priceErr = errors.New("feed down")

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
}

func TestScheduleRejectsWithinActionInterval(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 30)
	// LastCompound was stamped at activation; no time has passed.

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestScheduleRejectsDuplicateQueueEntry(t *testing.T) {
	params := defaultTestParams()
	params.MinBatchSize = 5 // keep the queue from flushing
	f := newFixture(t, params)
	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)

	require.NoError(t, f.sched.Schedule("alice", 1))
	require.Equal(t, 1, f.sched.QueueSize(1))

	err := f.sched.Schedule("alice", 1)
	require.ErrorIs(t, err, ErrCannotScheduleYet)
	require.Equal(t, 1, f.sched.QueueSize(1))
}

func TestFlushOnSizeAndMeanCeiling(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 30)
	f.join(t, "bob", 60, 30)
	f.now = f.now.Add(2 * time.Hour)

	f.venue.setPrice(sdkmath.LegacyNewDec(40))
	require.NoError(t, f.sched.Schedule("alice", 1))
	require.Zero(t, f.flusher.calls)
	require.Equal(t, 1, f.sched.QueueSize(1))

	// Price rises above alice's ceiling but stays below the queue's mean
	// ceiling of 50, so the size trigger still fires for both.
	f.venue.setPrice(sdkmath.LegacyNewDec(45))
	require.NoError(t, f.sched.Schedule("bob", 1))

	require.Equal(t, 1, f.flusher.calls)
	require.Equal(t, types.TriggerSizeAndPrice, f.flusher.trigger)
	require.Len(t, f.flusher.entries, 2)
	require.Equal(t, types.Participant("alice"), f.flusher.entries[0].Participant)
	require.Equal(t, types.Participant("bob"), f.flusher.entries[1].Participant)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestPriceAboveMeanCeilingHoldsQueue(t *testing.T) {
	f := newFixture(t, defaultTestParams())
	f.join(t, "alice", 40, 30)
	f.join(t, "bob", 60, 30)
	f.now = f.now.Add(2 * time.Hour)

	f.venue.setPrice(sdkmath.LegacyNewDec(40))
	require.NoError(t, f.sched.Schedule("alice", 1))

	f.venue.setPrice(sdkmath.LegacyNewDec(55))
	require.NoError(t, f.sched.Schedule("bob", 1))

	// Mean ceiling is 50; at price 55 the batch waits.
	require.Zero(t, f.flusher.calls)
	require.Equal(t, 2, f.sched.QueueSize(1))
}

func TestSweepFlushesStaleQueue(t *testing.T) {
	params := defaultTestParams()
	params.MinBatchSize = 5
	f := newFixture(t, params)
	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)

	require.NoError(t, f.sched.Schedule("alice", 1))
	require.Equal(t, 1, f.sched.QueueSize(1))

	// Within the wait bound nothing happens.
	f.sched.SweepStale()
	require.Zero(t, f.flusher.calls)

	// A lone entry never reaches MinBatchSize; the staleness bound flushes it.
	f.now = f.now.Add(24 * time.Hour)
	f.sched.SweepStale()
	require.Equal(t, 1, f.flusher.calls)
	require.Equal(t, types.TriggerMaxWait, f.flusher.trigger)
	require.Len(t, f.flusher.entries, 1)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestSizeCapFlushesRegardlessOfPrice(t *testing.T) {
	params := defaultTestParams()
	params.MinBatchSize = 10
	params.MaxBatchSize = 3
	f := newFixture(t, params)
	f.join(t, "alice", 40, 30)
	f.join(t, "bob", 60, 30)
	f.join(t, "carol", 80, 30)
	f.now = f.now.Add(2 * time.Hour)

	f.venue.setPrice(sdkmath.LegacyNewDec(30))
	require.NoError(t, f.sched.Schedule("alice", 1))
	require.NoError(t, f.sched.Schedule("bob", 1))
	require.Zero(t, f.flusher.calls)

	require.NoError(t, f.sched.Schedule("carol", 1))
	require.Equal(t, 1, f.flusher.calls)
	require.Equal(t, types.TriggerSizeCap, f.flusher.trigger)
	require.Len(t, f.flusher.entries, 3)
}

func TestForceFlush(t *testing.T) {
	params := defaultTestParams()
	params.MinBatchSize = 5
	f := newFixture(t, params)

	_, err := f.sched.ForceFlush(1)
	require.ErrorIs(t, err, ErrEmptyQueue)

	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)
	require.NoError(t, f.sched.Schedule("alice", 1))

	receipt, err := f.sched.ForceFlush(1)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, types.TriggerForced, f.flusher.trigger)
	require.Zero(t, f.sched.QueueSize(1))
}

func TestQueueSnapshotCarriesEnqueueState(t *testing.T) {
	params := defaultTestParams()
	params.MinBatchSize = 5
	f := newFixture(t, params)
	f.join(t, "alice", 40, 30)
	f.now = f.now.Add(2 * time.Hour)

	require.NoError(t, f.sched.Schedule("alice", 1))

	snap := f.sched.QueueSnapshot(1)
	require.Len(t, snap, 1)
	require.Equal(t, sdkmath.NewInt(30), snap[0].Amount)
	require.Equal(t, sdkmath.LegacyNewDec(40), snap[0].PriceCeiling)
	require.Equal(t, f.now, snap[0].EnqueuedAt)
}
