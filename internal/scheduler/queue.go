package scheduler

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/acm/internal/types"
)

// pendingQueue is one pool's append-only list of scheduled compound
// requests. It is not self-locking; the scheduler holds the pool lock around
// every access.
type pendingQueue struct {
	entries []types.PendingCompound
	members map[types.Participant]struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{members: make(map[types.Participant]struct{})}
}

func (q *pendingQueue) push(e types.PendingCompound) {
	q.entries = append(q.entries, e)
	q.members[e.Participant] = struct{}{}
}

// drain removes and returns all entries in enqueue order.
func (q *pendingQueue) drain() []types.PendingCompound {
	entries := q.entries
	q.entries = nil
	q.members = make(map[types.Participant]struct{})
	return entries
}

func (q *pendingQueue) size() int {
	return len(q.entries)
}

func (q *pendingQueue) contains(p types.Participant) bool {
	_, ok := q.members[p]
	return ok
}

func (q *pendingQueue) oldestEnqueuedAt() (time.Time, bool) {
	if len(q.entries) == 0 {
		return time.Time{}, false
	}
	// Entries are append-only, the first is always the oldest.
	return q.entries[0].EnqueuedAt, true
}

// meanCeiling returns the arithmetic mean of all queued price ceilings.
func (q *pendingQueue) meanCeiling() sdkmath.LegacyDec {
	if len(q.entries) == 0 {
		return sdkmath.LegacyZeroDec()
	}
	sum := sdkmath.LegacyZeroDec()
	for _, e := range q.entries {
		sum = sum.Add(e.PriceCeiling)
	}
	return sum.QuoInt64(int64(len(q.entries)))
}

// snapshot returns a copy of the queue contents for read-only callers.
func (q *pendingQueue) snapshot() []types.PendingCompound {
	return append([]types.PendingCompound(nil), q.entries...)
}
