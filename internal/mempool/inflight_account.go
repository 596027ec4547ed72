// Copyright 2025 Certen Protocol

package mempool

import (
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// accountTransition is one inflight transaction's claimed state change
// for a single account.
type accountTransition struct {
	txID       types.Digest
	initState  types.Digest
	finalState types.Digest
}

// InflightAccountState is the FIFO chain of pending state transitions
// for one account: transactions touching the same account
// must chain init_state to the previous transition's final_state.
// entries[:committed] have been included in a block the store has not
// yet durably recorded as applied; entries[committed:] are still
// pending batch/block inclusion. Only the uncommitted region can be
// reverted; a committed entry stays until PruneCommitted removes it
// after the store confirms the block landed.
type InflightAccountState struct {
	entries   []accountTransition
	committed int
}

// NewInflightAccountState returns an empty chain.
func NewInflightAccountState() *InflightAccountState {
	return &InflightAccountState{}
}

// IsEmpty reports whether the account has no inflight transitions.
func (a *InflightAccountState) IsEmpty() bool {
	return len(a.entries) == 0
}

// CurrentState returns the account's projected state after every
// inflight transition, or ok=false if there are none.
func (a *InflightAccountState) CurrentState() (types.Digest, bool) {
	if len(a.entries) == 0 {
		return types.Digest{}, false
	}
	return a.entries[len(a.entries)-1].finalState, true
}

// Insert appends a new transition to the end of the chain. The caller
// must have already verified initState matches CurrentState (or that the
// chain is empty and initState matches the account's on-chain state).
func (a *InflightAccountState) Insert(txID types.Digest, initState, finalState types.Digest) {
	a.entries = append(a.entries, accountTransition{txID: txID, initState: initState, finalState: finalState})
}

// Revert removes the most recently inserted n transitions (LIFO), used
// when a batch or block containing them fails and they're returned to
// the queue — or, for a failed non-tail transaction, together with every
// transition after it in the chain. Panics if n exceeds the uncommitted
// count: a caller asking to revert a committed transition is a bug, not
// a count to silently clamp.
func (a *InflightAccountState) Revert(n int) {
	uncommitted := len(a.entries) - a.committed
	if n > uncommitted {
		panic(fmt.Sprintf("mempool: revert count %d exceeds uncommitted count %d", n, uncommitted))
	}
	a.entries = a.entries[:len(a.entries)-n]
}

// RevertFrom removes txID and every transition inserted after it,
// returning the removed transaction ids in chain order. Used when a
// specific inflight transaction must be dropped (e.g. its batch failed)
// along with everything chained on top of it.
func (a *InflightAccountState) RevertFrom(txID types.Digest) []types.Digest {
	idx := -1
	for i, e := range a.entries {
		if e.txID == txID {
			idx = i
			break
		}
	}
	if idx < 0 || idx < a.committed {
		return nil
	}
	removed := make([]types.Digest, 0, len(a.entries)-idx)
	for _, e := range a.entries[idx:] {
		removed = append(removed, e.txID)
	}
	a.entries = a.entries[:idx]
	return removed
}

// Commit advances the committed boundary by n entries, marking them as
// included in a block. Panics if n exceeds the uncommitted count.
func (a *InflightAccountState) Commit(n int) {
	uncommitted := len(a.entries) - a.committed
	if n > uncommitted {
		panic(fmt.Sprintf("mempool: commit count %d exceeds uncommitted count %d", n, uncommitted))
	}
	a.committed += n
}

// PruneCommitted drops the first n committed entries once the store has
// durably recorded the block that committed them.
func (a *InflightAccountState) PruneCommitted(n int) {
	if n > a.committed {
		n = a.committed
	}
	a.entries = a.entries[n:]
	a.committed -= n
}

// CommittedLen reports how many leading entries are committed.
func (a *InflightAccountState) CommittedLen() int {
	return a.committed
}

// Len reports the total number of inflight transitions.
func (a *InflightAccountState) Len() int {
	return len(a.entries)
}
