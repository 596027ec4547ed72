// Copyright 2025 Certen Protocol
//
// inflight_state.go tracks everything the mempool must check a new
// transaction against that isn't yet durable in the store: each
// account's chain of pending state transitions, nullifiers already
// claimed by an inflight transaction, and output notes already produced
// inflight (candidates for resolving another transaction's
// unauthenticated input notes during admission).
package mempool

import "github.com/rollupnode/node/internal/types"

// InflightState is the mempool's working set of not-yet-durable effects.
// It is not safe for concurrent use on its own — Mempool serializes all
// access behind its own mutex.
type InflightState struct {
	accounts    map[uint64]*InflightAccountState
	nullifiers  map[types.Nullifier]types.Digest // nullifier -> claiming tx id
	outputNotes map[types.NoteId]types.Digest    // note id -> producing tx id
}

// NewInflightState returns an empty working set.
func NewInflightState() *InflightState {
	return &InflightState{
		accounts:    make(map[uint64]*InflightAccountState),
		nullifiers:  make(map[types.Nullifier]types.Digest),
		outputNotes: make(map[types.NoteId]types.Digest),
	}
}

// accountChain returns (creating if absent) the account's inflight chain.
func (s *InflightState) accountChain(prefix uint64) *InflightAccountState {
	c, ok := s.accounts[prefix]
	if !ok {
		c = NewInflightAccountState()
		s.accounts[prefix] = c
	}
	return c
}

// ProjectedState returns the account's state after every inflight
// transition, or ok=false if the account has none pending (the caller
// should then fall back to the store's on-chain state).
func (s *InflightState) ProjectedState(prefix uint64) (types.Digest, bool) {
	c, ok := s.accounts[prefix]
	if !ok {
		return types.Digest{}, false
	}
	return c.CurrentState()
}

// NullifierClaimedBy returns the tx id that has already claimed
// nullifier inflight, if any.
func (s *InflightState) NullifierClaimedBy(n types.Nullifier) (types.Digest, bool) {
	id, ok := s.nullifiers[n]
	return id, ok
}

// NoteProducedBy returns the tx id that has already produced noteID as
// an output note inflight, if any.
func (s *InflightState) NoteProducedBy(noteID types.NoteId) (types.Digest, bool) {
	id, ok := s.outputNotes[noteID]
	return id, ok
}

// Apply records a newly admitted transaction's effects: its account
// transition, its claimed nullifiers, and its produced output notes.
func (s *InflightState) Apply(tx *types.ProvenTransaction) {
	s.accountChain(tx.AccountID.Prefix).Insert(tx.ID, tx.InitState, tx.FinalState)
	for _, n := range tx.Nullifiers() {
		s.nullifiers[n] = tx.ID
	}
	for _, n := range tx.OutputNotes {
		s.outputNotes[n.ID] = tx.ID
	}
}

// Revert undoes a previously-applied transaction's effects: its account
// transition (and anything chained after it), its claimed nullifiers and
// its produced notes. Returns every transaction id transitively reverted
// from the account chain (tx.ID plus any later transitions on the same
// account that had to come off with it).
func (s *InflightState) Revert(tx *types.ProvenTransaction) []types.Digest {
	chain := s.accountChain(tx.AccountID.Prefix)
	reverted := chain.RevertFrom(tx.ID)
	for _, n := range tx.Nullifiers() {
		if claimant, ok := s.nullifiers[n]; ok && claimant == tx.ID {
			delete(s.nullifiers, n)
		}
	}
	for _, n := range tx.OutputNotes {
		if producer, ok := s.outputNotes[n.ID]; ok && producer == tx.ID {
			delete(s.outputNotes, n.ID)
		}
	}
	return reverted
}

// Commit marks a transaction's account transition as committed
// (included in a committed block).
func (s *InflightState) Commit(accountPrefix uint64, count int) {
	s.accountChain(accountPrefix).Commit(count)
}

// PruneCommitted drops an account's leading committed transitions once
// the block that committed them is durable.
func (s *InflightState) PruneCommitted(accountPrefix uint64, count int) {
	if c, ok := s.accounts[accountPrefix]; ok {
		c.PruneCommitted(count)
		if c.IsEmpty() {
			delete(s.accounts, accountPrefix)
		}
	}
}
