package strategy

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/acm/internal/types"
)

func testParams() types.CompoundParameters {
	return types.CompoundParameters{
		MinCompoundAmount: sdkmath.NewInt(25),
		MaxOverheadPrice:  sdkmath.LegacyNewDec(100),
		MinActionInterval: time.Hour,
		MinBatchSize:      5,
		MaxBatchSize:      50,
		MaxBatchWait:      24 * time.Hour,
		FeeDenominator:    10000,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	params := testParams()
	s := NewStore(&params, nil)
	s.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	s.InitPool(1, 30)
	return s
}

func TestActivateRejectsInvalidProfiles(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 0)
	require.ErrorIs(t, err, ErrInvalidRiskLevel)

	_, err = s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 11)
	require.ErrorIs(t, err, ErrInvalidRiskLevel)

	_, err = s.Activate("alice", 1, sdkmath.LegacyZeroDec(), 5)
	require.ErrorIs(t, err, ErrInvalidPriceCeiling)

	_, err = s.Activate("alice", 1, sdkmath.LegacyNewDec(-3), 5)
	require.ErrorIs(t, err, ErrInvalidPriceCeiling)

	_, err = s.Activate("alice", 1, sdkmath.LegacyNewDec(101), 5)
	require.ErrorIs(t, err, ErrInvalidPriceCeiling)

	_, err = s.Activate("alice", 99, sdkmath.LegacyNewDec(50), 5)
	require.ErrorIs(t, err, ErrUnknownPool)
}

func TestActivateDeactivateLifecycle(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)
	require.True(t, st.IsActive)
	require.Equal(t, types.PoolID(1), st.Pool)
	require.True(t, st.TotalDeposited.IsZero())

	_, err = s.Activate("alice", 1, sdkmath.LegacyNewDec(60), 5)
	require.ErrorIs(t, err, ErrAlreadyActive)

	pool, ok := s.GetPool(1)
	require.True(t, ok)
	require.Equal(t, 1, pool.TotalParticipants)
	require.NoError(t, s.VerifyPoolInvariant(1))

	require.NoError(t, s.Deactivate("alice", 1))
	require.False(t, s.IsActive("alice"))

	pool, _ = s.GetPool(1)
	require.Equal(t, 0, pool.TotalParticipants)
	require.Empty(t, s.ActiveParticipants(1))
	require.NoError(t, s.VerifyPoolInvariant(1))

	// The record is retained for queries after deactivation.
	st, ok = s.Get("alice")
	require.True(t, ok)
	require.False(t, st.IsActive)

	require.ErrorIs(t, s.Deactivate("alice", 1), ErrNotActive)
}

func TestReactivationKeepsLifetimeTotals(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	require.True(t, s.CreditCompound("alice", sdkmath.NewInt(1000), at))

	require.NoError(t, s.Deactivate("alice", 1))

	st, err := s.Activate("alice", 1, sdkmath.LegacyNewDec(70), 8)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1000), st.TotalCompounded)
	require.Equal(t, sdkmath.NewInt(1000), st.TotalDeposited)
	require.Equal(t, sdkmath.LegacyNewDec(70), st.OverheadPriceCeiling)
	require.Equal(t, 8, st.RiskLevel)
}

func TestDeactivateSwapRemovePreservesInvariant(t *testing.T) {
	s := newTestStore(t)

	for _, p := range []types.Participant{"alice", "bob", "carol"} {
		_, err := s.Activate(p, 1, sdkmath.LegacyNewDec(50), 5)
		require.NoError(t, err)
	}

	require.NoError(t, s.Deactivate("bob", 1))

	active := s.ActiveParticipants(1)
	require.Len(t, active, 2)
	require.NotContains(t, active, types.Participant("bob"))
	require.Contains(t, active, types.Participant("alice"))
	require.Contains(t, active, types.Participant("carol"))
	require.NoError(t, s.VerifyPoolInvariant(1))
}

func TestUpdateRequiresActiveStrategy(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update("alice", sdkmath.LegacyNewDec(50), 5)
	require.ErrorIs(t, err, ErrNotActive)

	_, err = s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)

	st, err := s.Update("alice", sdkmath.LegacyNewDec(80), 9)
	require.NoError(t, err)
	require.Equal(t, sdkmath.LegacyNewDec(80), st.OverheadPriceCeiling)
	require.Equal(t, 9, st.RiskLevel)

	_, err = s.Update("alice", sdkmath.LegacyNewDec(200), 9)
	require.ErrorIs(t, err, ErrInvalidPriceCeiling)
}

func TestLoadRebuildsActiveLists(t *testing.T) {
	params := testParams()
	s := NewStore(&params, nil)

	s.Load(
		[]types.ParticipantStrategy{
			{Participant: "alice", Pool: 1, IsActive: true, TotalDeposited: sdkmath.ZeroInt(), TotalCompounded: sdkmath.ZeroInt(), OverheadPriceCeiling: sdkmath.LegacyNewDec(50), RiskLevel: 5},
			{Participant: "bob", Pool: 1, IsActive: false, TotalDeposited: sdkmath.ZeroInt(), TotalCompounded: sdkmath.ZeroInt(), OverheadPriceCeiling: sdkmath.LegacyNewDec(40), RiskLevel: 3},
			{Participant: "carol", Pool: 2, IsActive: true, TotalDeposited: sdkmath.ZeroInt(), TotalCompounded: sdkmath.ZeroInt(), OverheadPriceCeiling: sdkmath.LegacyNewDec(60), RiskLevel: 7},
		},
		[]types.PoolStrategy{
			{PoolID: 1, FeeRate: 30, TotalParticipants: 1, TotalValueLocked: sdkmath.ZeroInt(), IsActive: true},
			{PoolID: 2, FeeRate: 5, TotalParticipants: 1, TotalValueLocked: sdkmath.ZeroInt(), IsActive: true},
		},
	)

	require.Equal(t, []types.Participant{"alice"}, s.ActiveParticipants(1))
	require.Equal(t, []types.Participant{"carol"}, s.ActiveParticipants(2))
	require.NoError(t, s.VerifyPoolInvariant(1))
	require.NoError(t, s.VerifyPoolInvariant(2))
	require.True(t, s.IsActive("alice"))
	require.False(t, s.IsActive("bob"))
}

func TestAdjustTVLFloorsRemovalsAtZero(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AdjustTVL(1, sdkmath.NewInt(500), false))
	pool, _ := s.GetPool(1)
	require.Equal(t, sdkmath.NewInt(500), pool.TotalValueLocked)

	// Removal larger than tracked TVL: liquidity added before tracking began.
	require.NoError(t, s.AdjustTVL(1, sdkmath.NewInt(800), true))
	pool, _ = s.GetPool(1)
	require.True(t, pool.TotalValueLocked.IsZero())

	require.ErrorIs(t, s.AdjustTVL(99, sdkmath.NewInt(1), false), ErrUnknownPool)
}

func TestCreditCompoundSkipsDeactivated(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Activate("alice", 1, sdkmath.LegacyNewDec(50), 5)
	require.NoError(t, err)
	require.NoError(t, s.Deactivate("alice", 1))

	at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	require.False(t, s.CreditCompound("alice", sdkmath.NewInt(100), at))

	st, _ := s.Get("alice")
	require.True(t, st.TotalCompounded.IsZero())
}

func TestInitPoolIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	// The venue replays pool notifications after reconnects.
	s.InitPool(1, 999)
	pool, ok := s.GetPool(1)
	require.True(t, ok)
	require.Equal(t, int64(30), pool.FeeRate)
	require.Len(t, s.Pools(), 1)
}
