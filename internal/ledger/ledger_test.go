package ledger

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/acm/internal/types"
)

// stubActiveChecker marks a fixed set of participants as active.
type stubActiveChecker map[types.Participant]bool

func (s stubActiveChecker) IsActive(p types.Participant) bool { return s[p] }

func testParams() types.CompoundParameters {
	return types.CompoundParameters{
		MinCompoundAmount: sdkmath.NewInt(25),
		MaxOverheadPrice:  sdkmath.LegacyNewDec(100),
		FeeDenominator:    10000,
	}
}

func newTestLedger(active stubActiveChecker) *Ledger {
	params := testParams()
	l := NewLedger(&params, active, nil)
	l.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return l
}

func TestRecordFeeRequiresActiveStrategy(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	require.False(t, l.RecordFee("bob", 1, sdkmath.NewInt(10)))
	_, found := l.Get("bob", 1)
	require.False(t, found)

	require.True(t, l.RecordFee("alice", 1, sdkmath.NewInt(10)))
	acc, found := l.Get("alice", 1)
	require.True(t, found)
	require.Equal(t, sdkmath.NewInt(10), acc.TotalFeesEarned)
	require.Equal(t, sdkmath.NewInt(10), acc.PendingCompound)
}

func TestRecordFeeRejectsNonPositiveAmounts(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	require.False(t, l.RecordFee("alice", 1, sdkmath.ZeroInt()))
	require.False(t, l.RecordFee("alice", 1, sdkmath.NewInt(-5)))
	require.False(t, l.RecordFee("alice", 1, sdkmath.Int{}))
	_, found := l.Get("alice", 1)
	require.False(t, found)
}

func TestSwapFeeDerivation(t *testing.T) {
	l := newTestLedger(stubActiveChecker{})

	// fee = (|delta0| + |delta1|) * feeRate / denominator, basis points.
	fee := l.SwapFee(sdkmath.NewInt(-500_000), sdkmath.NewInt(495_000), 30)
	require.Equal(t, sdkmath.NewInt(2985), fee)

	// Truncating division: sub-unit fees round down to zero.
	fee = l.SwapFee(sdkmath.NewInt(100), sdkmath.NewInt(-100), 30)
	require.True(t, fee.IsZero())
}

func TestPendingNeverExceedsTotal(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	l.RecordFee("alice", 1, sdkmath.NewInt(40))
	l.ConsumePending("alice", 1)
	l.RecordFee("alice", 1, sdkmath.NewInt(15))

	acc, _ := l.Get("alice", 1)
	require.Equal(t, sdkmath.NewInt(55), acc.TotalFeesEarned)
	require.Equal(t, sdkmath.NewInt(15), acc.PendingCompound)
	require.True(t, acc.PendingCompound.LTE(acc.TotalFeesEarned))
}

func TestConsumePendingIsAtomicReadAndZero(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	l.RecordFee("alice", 1, sdkmath.NewInt(30))

	consumed := l.ConsumePending("alice", 1)
	require.Equal(t, sdkmath.NewInt(30), consumed)
	require.True(t, l.Pending("alice", 1).IsZero())

	// Second consume finds nothing; the lifetime total is untouched.
	require.True(t, l.ConsumePending("alice", 1).IsZero())
	acc, _ := l.Get("alice", 1)
	require.Equal(t, sdkmath.NewInt(30), acc.TotalFeesEarned)

	// Unknown pair consumes zero without creating an account.
	require.True(t, l.ConsumePending("bob", 2).IsZero())
}

func TestSmallFeesAggregateToEligibility(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	// Three 10-unit accruals against a 25-unit minimum: eligible only after
	// the third.
	for i := 0; i < 2; i++ {
		l.RecordFee("alice", 1, sdkmath.NewInt(10))
		require.True(t, l.Pending("alice", 1).LT(testParams().MinCompoundAmount))
	}
	l.RecordFee("alice", 1, sdkmath.NewInt(10))
	require.True(t, l.Pending("alice", 1).GTE(testParams().MinCompoundAmount))
	require.Equal(t, sdkmath.NewInt(30), l.Pending("alice", 1))
}

func TestLoadSeedsAccounts(t *testing.T) {
	l := newTestLedger(stubActiveChecker{"alice": true})

	l.Load([]types.FeeAccount{
		{Participant: "alice", PoolID: 1, TotalFeesEarned: sdkmath.NewInt(100), PendingCompound: sdkmath.NewInt(40)},
	})

	require.Equal(t, sdkmath.NewInt(40), l.Pending("alice", 1))
	acc, found := l.Get("alice", 1)
	require.True(t, found)
	require.Equal(t, sdkmath.NewInt(100), acc.TotalFeesEarned)
}
