/*

This file contains the StrategyStore: every participant's auto-compound
profile and every pool's aggregate compounding state, with the per-pool
active participant lists used for enumeration.

All in-memory mutation happens under the store mutex; the critical sections
are map updates only and never span the venue deposit call. Per-pool
serialization of compound flow is enforced one level up by the scheduler.

*/

package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/metrics"
	"github.com/elys-network/acm/internal/types"
)

var (
	ErrAlreadyActive       = errors.New("participant already has an active strategy")
	ErrNotActive           = errors.New("participant has no active strategy")
	ErrInvalidRiskLevel    = errors.New("risk level must be between 1 and 10")
	ErrInvalidPriceCeiling = errors.New("overhead price ceiling is invalid")
	ErrUnknownPool         = errors.New("pool is not registered")
)

// Persister is the write-through persistence hook. A nil Persister disables
// persistence (tests, dry runs); write failures are logged, never fatal.
type Persister interface {
	SaveParticipantStrategy(types.ParticipantStrategy) error
	SavePoolStrategy(types.PoolStrategy) error
}

// Store holds all participant and pool strategies.
type Store struct {
	log     zerolog.Logger
	params  *types.CompoundParameters
	persist Persister

	mu           sync.RWMutex
	strategies   map[types.Participant]*types.ParticipantStrategy
	pools        map[types.PoolID]*types.PoolStrategy
	activeByPool map[types.PoolID][]types.Participant

	nowFn func() time.Time
}

// NewStore creates an empty strategy store.
func NewStore(params *types.CompoundParameters, persist Persister) *Store {
	return &Store{
		log:          logger.GetForComponent("strategy_store"),
		params:       params,
		persist:      persist,
		strategies:   make(map[types.Participant]*types.ParticipantStrategy),
		pools:        make(map[types.PoolID]*types.PoolStrategy),
		activeByPool: make(map[types.PoolID][]types.Participant),
		nowFn:        time.Now,
	}
}

// SetClock overrides the store's time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) { s.nowFn = now }

// Load seeds the store from persisted state at startup. Active participant
// lists are rebuilt from the activation pool recorded on each strategy.
func (s *Store) Load(strategies []types.ParticipantStrategy, pools []types.PoolStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range pools {
		p := pools[i]
		s.pools[p.PoolID] = &p
	}
	for i := range strategies {
		st := strategies[i]
		s.strategies[st.Participant] = &st
		if st.IsActive {
			s.activeByPool[st.Pool] = append(s.activeByPool[st.Pool], st.Participant)
		}
	}

	s.log.Info().
		Int("strategies", len(strategies)).
		Int("pools", len(pools)).
		Msg("Strategy store loaded from persisted state")
}

// InitPool registers a pool on the pool-created notification. Re-registering
// an already known pool is a no-op; the venue replays notifications after
// reconnects.
func (s *Store) InitPool(pool types.PoolID, feeRate int64) {
	s.mu.Lock()
	if _, exists := s.pools[pool]; exists {
		s.mu.Unlock()
		s.log.Debug().Uint64("pool", uint64(pool)).Msg("Pool already registered, ignoring")
		return
	}
	ps := &types.PoolStrategy{
		PoolID:           pool,
		FeeRate:          feeRate,
		TotalValueLocked: sdkmath.ZeroInt(),
		IsActive:         true,
	}
	s.pools[pool] = ps
	snapshot := *ps
	s.mu.Unlock()

	s.log.Info().Uint64("pool", uint64(pool)).Int64("feeRate", feeRate).Msg("Pool registered")
	s.persistPool(snapshot)
}

// Activate creates a participant's strategy and joins them to the pool's
// active list. A participant has at most one global strategy.
func (s *Store) Activate(participant types.Participant, pool types.PoolID, ceiling sdkmath.LegacyDec, riskLevel int) (types.ParticipantStrategy, error) {
	if err := s.validateProfile(ceiling, riskLevel); err != nil {
		return types.ParticipantStrategy{}, err
	}

	s.mu.Lock()
	poolState, ok := s.pools[pool]
	if !ok {
		s.mu.Unlock()
		return types.ParticipantStrategy{}, fmt.Errorf("%w: %d", ErrUnknownPool, pool)
	}
	if existing, ok := s.strategies[participant]; ok && existing.IsActive {
		s.mu.Unlock()
		return types.ParticipantStrategy{}, ErrAlreadyActive
	}

	now := s.nowFn()
	st := &types.ParticipantStrategy{
		Participant:          participant,
		Pool:                 pool,
		IsActive:             true,
		TotalDeposited:       sdkmath.ZeroInt(),
		TotalCompounded:      sdkmath.ZeroInt(),
		LastCompound:         now,
		OverheadPriceCeiling: ceiling,
		RiskLevel:            riskLevel,
	}
	if existing, ok := s.strategies[participant]; ok {
		// Re-activation keeps lifetime totals, history is retained.
		st.TotalDeposited = existing.TotalDeposited
		st.TotalCompounded = existing.TotalCompounded
	}
	s.strategies[participant] = st

	s.activeByPool[pool] = append(s.activeByPool[pool], participant)
	poolState.TotalParticipants++
	poolState.IsActive = true

	stSnap, poolSnap := *st, *poolState
	s.mu.Unlock()

	s.log.Info().
		Str("event", "StrategyActivated").
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Str("ceiling", ceiling.String()).
		Int("riskLevel", riskLevel).
		Msg("Strategy activated")
	metrics.StrategyEvents.WithLabelValues("StrategyActivated").Inc()

	s.persistStrategy(stSnap)
	s.persistPool(poolSnap)
	return stSnap, nil
}

// Deactivate disables a participant's strategy and removes them from the
// pool's active list. The record itself is retained. Already-queued compound
// requests are not cancelled; the executor skips the strategy credit for
// deactivated participants.
func (s *Store) Deactivate(participant types.Participant, pool types.PoolID) error {
	s.mu.Lock()
	st, ok := s.strategies[participant]
	if !ok || !st.IsActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if pool != st.Pool {
		// List membership is keyed by the activation pool, not the caller's.
		s.log.Warn().
			Str("participant", string(participant)).
			Uint64("requested", uint64(pool)).
			Uint64("activated", uint64(st.Pool)).
			Msg("Deactivate called with a different pool than activation, using activation pool")
		pool = st.Pool
	}
	poolState, ok := s.pools[pool]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownPool, pool)
	}

	st.IsActive = false
	s.removeFromActiveList(pool, participant)
	poolState.TotalParticipants--

	stSnap, poolSnap := *st, *poolState
	s.mu.Unlock()

	s.log.Info().
		Str("event", "StrategyDeactivated").
		Str("participant", string(participant)).
		Uint64("pool", uint64(pool)).
		Msg("Strategy deactivated")
	metrics.StrategyEvents.WithLabelValues("StrategyDeactivated").Inc()

	s.persistStrategy(stSnap)
	s.persistPool(poolSnap)
	return nil
}

// Update mutates a participant's risk profile in place.
func (s *Store) Update(participant types.Participant, ceiling sdkmath.LegacyDec, riskLevel int) (types.ParticipantStrategy, error) {
	if err := s.validateProfile(ceiling, riskLevel); err != nil {
		return types.ParticipantStrategy{}, err
	}

	s.mu.Lock()
	st, ok := s.strategies[participant]
	if !ok || !st.IsActive {
		s.mu.Unlock()
		return types.ParticipantStrategy{}, ErrNotActive
	}
	st.OverheadPriceCeiling = ceiling
	st.RiskLevel = riskLevel
	stSnap := *st
	s.mu.Unlock()

	s.log.Info().
		Str("event", "StrategyUpdated").
		Str("participant", string(participant)).
		Str("ceiling", ceiling.String()).
		Int("riskLevel", riskLevel).
		Msg("Strategy updated")
	metrics.StrategyEvents.WithLabelValues("StrategyUpdated").Inc()

	s.persistStrategy(stSnap)
	return stSnap, nil
}

// Get returns a copy of the participant's strategy record.
func (s *Store) Get(participant types.Participant) (types.ParticipantStrategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[participant]
	if !ok {
		return types.ParticipantStrategy{}, false
	}
	return *st, true
}

// IsActive reports whether the participant has an active strategy.
func (s *Store) IsActive(participant types.Participant) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[participant]
	return ok && st.IsActive
}

// GetPool returns a copy of the pool's strategy record.
func (s *Store) GetPool(pool types.PoolID) (types.PoolStrategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[pool]
	if !ok {
		return types.PoolStrategy{}, false
	}
	return *p, true
}

// Pools returns the IDs of all registered pools.
func (s *Store) Pools() []types.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.PoolID, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	return ids
}

// ActiveParticipants returns a copy of the pool's active participant list.
func (s *Store) ActiveParticipants(pool types.PoolID) []types.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Participant(nil), s.activeByPool[pool]...)
}

// AdjustTVL applies a liquidity delta to the pool's TVL. Removals are floored
// at zero; the venue can report removals for liquidity added before this
// service started tracking the pool.
func (s *Store) AdjustTVL(pool types.PoolID, delta sdkmath.Int, removal bool) error {
	s.mu.Lock()
	poolState, ok := s.pools[pool]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownPool, pool)
	}
	if removal {
		next := poolState.TotalValueLocked.Sub(delta)
		if next.IsNegative() {
			next = sdkmath.ZeroInt()
		}
		poolState.TotalValueLocked = next
	} else {
		poolState.TotalValueLocked = poolState.TotalValueLocked.Add(delta)
	}
	poolSnap := *poolState
	s.mu.Unlock()

	s.persistPool(poolSnap)
	return nil
}

// CreditCompound records a successful compound against the participant's
// strategy. Returns false without mutating anything when the strategy has
// been deactivated since the request was queued.
func (s *Store) CreditCompound(participant types.Participant, amount sdkmath.Int, at time.Time) bool {
	s.mu.Lock()
	st, ok := s.strategies[participant]
	if !ok || !st.IsActive {
		s.mu.Unlock()
		return false
	}
	st.TotalCompounded = st.TotalCompounded.Add(amount)
	st.TotalDeposited = st.TotalDeposited.Add(amount)
	st.LastCompound = at
	stSnap := *st
	s.mu.Unlock()

	s.persistStrategy(stSnap)
	return true
}

// MarkPoolCompound stamps the pool's last compound time after a flush.
func (s *Store) MarkPoolCompound(pool types.PoolID, at time.Time) {
	s.mu.Lock()
	poolState, ok := s.pools[pool]
	if !ok {
		s.mu.Unlock()
		return
	}
	poolState.LastCompound = at
	poolSnap := *poolState
	s.mu.Unlock()

	s.persistPool(poolSnap)
}

// VerifyPoolInvariant checks that the active list length matches the pool's
// participant counter. A mismatch means internal corruption and is treated as
// fatal by the caller, never silently corrected.
func (s *Store) VerifyPoolInvariant(pool types.PoolID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poolState, ok := s.pools[pool]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPool, pool)
	}
	if len(s.activeByPool[pool]) != poolState.TotalParticipants {
		return fmt.Errorf("pool %d active list has %d entries but counter reads %d",
			pool, len(s.activeByPool[pool]), poolState.TotalParticipants)
	}
	return nil
}

// validateProfile validates the user-supplied risk profile.
func (s *Store) validateProfile(ceiling sdkmath.LegacyDec, riskLevel int) error {
	if riskLevel < 1 || riskLevel > 10 {
		return fmt.Errorf("%w: got %d", ErrInvalidRiskLevel, riskLevel)
	}
	if ceiling.IsNil() || !ceiling.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidPriceCeiling)
	}
	if ceiling.GT(s.params.MaxOverheadPrice) {
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrInvalidPriceCeiling, ceiling, s.params.MaxOverheadPrice)
	}
	return nil
}

// removeFromActiveList swap-removes the participant. Order is not preserved.
func (s *Store) removeFromActiveList(pool types.PoolID, participant types.Participant) {
	list := s.activeByPool[pool]
	for i, p := range list {
		if p == participant {
			list[i] = list[len(list)-1]
			s.activeByPool[pool] = list[:len(list)-1]
			return
		}
	}
}

func (s *Store) persistStrategy(st types.ParticipantStrategy) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveParticipantStrategy(st); err != nil {
		s.log.Error().Err(err).Str("participant", string(st.Participant)).Msg("Failed to persist participant strategy")
	}
}

func (s *Store) persistPool(p types.PoolStrategy) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SavePoolStrategy(p); err != nil {
		s.log.Error().Err(err).Uint64("pool", uint64(p.PoolID)).Msg("Failed to persist pool strategy")
	}
}
