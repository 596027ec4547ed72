// Copyright 2025 Certen Protocol
//
// MockStore is an in-memory stand-in satisfying the same contract as
// Store, for tests that need a full store without a SQLite data file.
package store

import (
	"context"
	"sync"

	"github.com/rollupnode/node/internal/mmr"
	"github.com/rollupnode/node/internal/smt"
	"github.com/rollupnode/node/internal/types"
)

// MockStore implements mempool.StoreReader and blockbuilder.Store
// entirely in memory.
type MockStore struct {
	mu sync.Mutex

	accounts   *smt.Tree
	nullifiers *NullifierTree
	chainMMR   *mmr.MMR
	notes      map[types.NoteId]types.NoteHeader
	blocks     map[types.BlockNumber]*types.Block

	tip types.BlockHeader
}

// NewMockStore returns an empty mock store, pre-genesis.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts:   smt.New(AccountTreeDepth),
		nullifiers: NewNullifierTree(),
		chainMMR:   mmr.New(),
		notes:      make(map[types.NoteId]types.NoteHeader),
		blocks:     make(map[types.BlockNumber]*types.Block),
	}
}

// SeedAccount sets an account's initial state directly, bypassing the
// block pipeline (used to set up test fixtures).
func (m *MockStore) SeedAccount(prefix uint64, state types.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts.Set(prefix, state)
}

// SeedNote registers a note header as though it had been committed,
// letting tests exercise unauthenticated-note resolution against the
// store.
func (m *MockStore) SeedNote(h types.NoteHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[h.ID] = h
}

// AccountState implements mempool.StoreReader.
func (m *MockStore) AccountState(id types.AccountId) (types.Digest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.accounts.Has(id.Prefix) {
		return types.Digest{}, false, nil
	}
	return m.accounts.Get(id.Prefix), true, nil
}

// CheckNullifiers implements mempool.StoreReader.
func (m *MockStore) CheckNullifiers(nullifiers []types.Nullifier) (map[types.Nullifier]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.Nullifier]bool, len(nullifiers))
	for _, n := range nullifiers {
		out[n] = m.nullifiers.IsSpent(n)
	}
	return out, nil
}

// GetNoteHeader implements mempool.StoreReader.
func (m *MockStore) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.notes[id]
	return h, ok, nil
}

// ApplyAccountUpdates implements blockbuilder.TreeState.
func (m *MockStore) ApplyAccountUpdates(updates []types.AccountUpdate) (types.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sets := make(map[uint64]types.Digest, len(updates))
	for _, u := range updates {
		sets[u.AccountID.Prefix] = u.FinalState
	}
	ms := m.accounts.ApplyMutations(sets)
	return ms.NewRoot, nil
}

// ApplyNullifiers implements blockbuilder.TreeState.
func (m *MockStore) ApplyNullifiers(nullifiers []types.ProducedNullifier) (types.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nullifiers.MarkSpent(nullifiers)
}

// ChainRoot implements blockbuilder.TreeState.
func (m *MockStore) ChainRoot(prevBlockHash types.Digest) (types.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainMMR.NextChainRoot(prevBlockHash), nil
}

// PreviousHeader implements blockbuilder.Store.
func (m *MockStore) PreviousHeader() (types.BlockHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

// AccountStates implements blockbuilder.Store.
func (m *MockStore) AccountStates(ids []types.AccountId) (map[uint64]types.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]types.Digest, len(ids))
	for _, id := range ids {
		out[id.Prefix] = m.accounts.Get(id.Prefix)
	}
	return out, nil
}

// ApplyBlock implements blockbuilder.Store.
func (m *MockStore) ApplyBlock(_ context.Context, block *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range block.OutputNotesByBatch {
		for _, note := range n.Notes {
			m.notes[note.ID] = note
		}
	}
	m.blocks[block.Header.BlockNum] = block
	m.chainMMR.Append(blockHash(block.Header))
	m.tip = block.Header
	return nil
}
