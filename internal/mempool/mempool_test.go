// Copyright 2025 Certen Protocol

package mempool

import (
	"errors"
	"testing"

	"github.com/rollupnode/node/internal/types"
)

// mockStore is the in-memory StoreReader stand-in used by mempool tests,
// matching the same contract the real store package implements.
type mockStore struct {
	tip        types.BlockNumber
	accounts   map[uint64]types.Digest
	nullifiers map[types.Nullifier]bool
	notes      map[types.NoteId]types.NoteHeader
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts:   make(map[uint64]types.Digest),
		nullifiers: make(map[types.Nullifier]bool),
		notes:      make(map[types.NoteId]types.NoteHeader),
	}
}

func (s *mockStore) ChainTip() types.BlockNumber { return s.tip }

func (s *mockStore) AccountState(id types.AccountId) (types.Digest, bool, error) {
	d, ok := s.accounts[id.Prefix]
	return d, ok, nil
}

func (s *mockStore) CheckNullifiers(ns []types.Nullifier) (map[types.Nullifier]bool, error) {
	out := make(map[types.Nullifier]bool, len(ns))
	for _, n := range ns {
		out[n] = s.nullifiers[n]
	}
	return out, nil
}

func (s *mockStore) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
	h, ok := s.notes[id]
	return h, ok, nil
}

func digest(b byte) types.Digest {
	buf := make([]byte, 32)
	buf[31] = b
	d, err := types.DigestFromBytes(buf)
	if err != nil {
		panic(err)
	}
	return d
}

func account(prefix uint64) types.AccountId {
	return types.AccountId{Prefix: prefix, Full: digest(byte(prefix))}
}

func nullifier(b byte) types.Nullifier { return digest(b) }

func tx(id byte, acct uint64, init, final types.Digest, expires types.BlockNumber) *types.ProvenTransaction {
	return &types.ProvenTransaction{
		ID:              digest(id),
		AccountID:       account(acct),
		InitState:       init,
		FinalState:      final,
		ExpirationBlock: expires,
		InputNotes:      []types.InputNote{{Nullifier: nullifier(id)}},
	}
}

func TestAddTransactionHappyPath(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 50)
	if err := mp.AddTransaction(transaction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mp.Len() != 1 {
		t.Fatalf("expected 1 tracked transaction, got %d", mp.Len())
	}
}

func TestAccountChainOfLengthTwo(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	tx1 := tx(1, 10, types.ZeroDigest, digest(100), 50)
	if err := mp.AddTransaction(tx1); err != nil {
		t.Fatalf("tx1: %v", err)
	}
	// tx2 chains off tx1's final state.
	tx2 := tx(2, 10, digest(100), digest(200), 50)
	if err := mp.AddTransaction(tx2); err != nil {
		t.Fatalf("tx2: %v", err)
	}

	// A transaction that doesn't chain from the projected state is
	// rejected.
	bad := tx(3, 10, digest(999), digest(300), 50)
	err := mp.AddTransaction(bad)
	var stateErr *types.InvalidAccountStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidAccountStateError, got %v", err)
	}
}

func TestDoubleSpendRejected(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	tx1 := tx(1, 10, types.ZeroDigest, digest(100), 50)
	if err := mp.AddTransaction(tx1); err != nil {
		t.Fatalf("tx1: %v", err)
	}

	// tx2 (different account) reuses tx1's nullifier.
	tx2 := tx(2, 20, types.ZeroDigest, digest(50), 50)
	tx2.InputNotes = []types.InputNote{{Nullifier: nullifier(1)}}
	err := mp.AddTransaction(tx2)
	var consumedErr *types.NotesAlreadyConsumedError
	if !errors.As(err, &consumedErr) {
		t.Fatalf("expected NotesAlreadyConsumedError, got %v", err)
	}
}

func TestDoubleSpendAgainstStoreRejected(t *testing.T) {
	store := newMockStore()
	store.nullifiers[nullifier(9)] = true
	mp := New(DefaultConfig(), store)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 50)
	transaction.InputNotes = []types.InputNote{{Nullifier: nullifier(9)}}
	err := mp.AddTransaction(transaction)
	var consumedErr *types.NotesAlreadyConsumedError
	if !errors.As(err, &consumedErr) {
		t.Fatalf("expected NotesAlreadyConsumedError for a store-spent nullifier, got %v", err)
	}
}

func TestUnauthenticatedNoteConsumption(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	producer := tx(1, 10, types.ZeroDigest, digest(100), 50)
	noteHeader := types.NoteHeader{ID: digest(77)}
	producer.OutputNotes = []types.NoteHeader{noteHeader}
	if err := mp.AddTransaction(producer); err != nil {
		t.Fatalf("producer: %v", err)
	}

	consumer := tx(2, 20, types.ZeroDigest, digest(50), 50)
	consumer.InputNotes = []types.InputNote{{Nullifier: nullifier(2), Header: &noteHeader}}
	if err := mp.AddTransaction(consumer); err != nil {
		t.Fatalf("consumer should resolve its unauthenticated input inflight: %v", err)
	}

	parents := mp.txGraph.Parents(consumer.ID)
	found := false
	for _, p := range parents {
		if p == producer.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("consumer must gain a graph parent edge to its note's producer")
	}
}

func TestUnauthenticatedNoteNotFoundRejected(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	noteHeader := types.NoteHeader{ID: digest(55)}
	consumer := tx(1, 10, types.ZeroDigest, digest(100), 50)
	consumer.InputNotes = []types.InputNote{{Nullifier: nullifier(1), Header: &noteHeader}}
	err := mp.AddTransaction(consumer)
	var notFoundErr *types.UnauthenticatedNotesNotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("expected UnauthenticatedNotesNotFoundError, got %v", err)
	}
}

func TestBatchRevertCascade(t *testing.T) {
	store := newMockStore()
	cfg := DefaultConfig()
	cfg.MaxTxPerBatch = 1
	mp := New(cfg, store)

	tx1 := tx(1, 10, types.ZeroDigest, digest(100), 50)
	tx2 := tx(2, 10, digest(100), digest(200), 50)
	if err := mp.AddTransaction(tx1); err != nil {
		t.Fatalf("tx1: %v", err)
	}
	if err := mp.AddTransaction(tx2); err != nil {
		t.Fatalf("tx2: %v", err)
	}

	batch1, ok := mp.SelectBatch()
	if !ok || len(batch1.Transactions) != 1 || batch1.Transactions[0].ID != tx1.ID {
		t.Fatalf("expected batch1 to contain only tx1 (root-eligible), got %+v", batch1)
	}
	batch2, ok := mp.SelectBatch()
	if !ok || len(batch2.Transactions) != 1 || batch2.Transactions[0].ID != tx2.ID {
		t.Fatalf("expected batch2 to contain only tx2, got %+v", batch2)
	}

	if err := mp.BatchFailed(batch1.ID, errors.New("prover exploded")); err == nil {
		t.Fatalf("BatchFailed must return a non-nil error describing the failure")
	}

	// Both transactions must be fully reverted: resubmitting tx1 from
	// scratch must succeed as if nothing had happened.
	if mp.Len() != 0 {
		t.Fatalf("expected all transactions reverted after cascading batch failure, got %d remaining", mp.Len())
	}
	if err := mp.AddTransaction(tx1); err != nil {
		t.Fatalf("tx1 should be resubmittable after its batch (and dependents) were reverted: %v", err)
	}
}

func TestBlockCommittedPrunesState(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 50)
	if err := mp.AddTransaction(transaction); err != nil {
		t.Fatalf("add: %v", err)
	}
	batch, ok := mp.SelectBatch()
	if !ok {
		t.Fatalf("expected a selectable batch")
	}
	if err := mp.BatchProved(batch.ID, []byte("proof")); err != nil {
		t.Fatalf("BatchProved: %v", err)
	}
	selected, ok := mp.SelectBlock()
	if !ok || len(selected) != 1 {
		t.Fatalf("expected one batch selected into a block, got %v ok=%v", selected, ok)
	}
	if err := mp.BlockCommitted([]types.BatchID{batch.ID}); err != nil {
		t.Fatalf("BlockCommitted: %v", err)
	}
	if mp.Len() != 0 {
		t.Fatalf("expected mempool to be empty after block commit, got %d", mp.Len())
	}

	// A later transaction chaining off the committed state must now
	// consult the (updated) store rather than any leftover inflight state.
	store.accounts[10] = digest(100)
	next := tx(2, 10, digest(100), digest(150), 50)
	if err := mp.AddTransaction(next); err != nil {
		t.Fatalf("post-commit chained tx: %v", err)
	}
}

func TestStaleInputsRejected(t *testing.T) {
	store := newMockStore()
	store.tip = 1000
	cfg := DefaultConfig()
	cfg.StateRetention = 10
	mp := New(cfg, store)
	mp.SetChainTip(1000)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 2000)
	transaction.BlockRef = 5 // far behind the retention window
	err := mp.AddTransaction(transaction)
	if !errors.Is(err, types.ErrStaleInputs) {
		t.Fatalf("expected ErrStaleInputs, got %v", err)
	}
}

func TestExpiredTransactionRejected(t *testing.T) {
	store := newMockStore()
	store.tip = 100
	mp := New(DefaultConfig(), store)
	mp.SetChainTip(100)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 100)
	err := mp.AddTransaction(transaction)
	if !errors.Is(err, types.ErrExpired) {
		t.Fatalf("expected ErrExpired for a transaction expiring at the current tip, got %v", err)
	}
}

func TestExpireOverdueDropsFromQueue(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	transaction := tx(1, 10, types.ZeroDigest, digest(100), 50)
	if err := mp.AddTransaction(transaction); err != nil {
		t.Fatalf("add: %v", err)
	}
	mp.SetChainTip(50)
	dropped := mp.ExpireOverdue()
	if len(dropped) != 1 || dropped[0] != transaction.ID {
		t.Fatalf("expected transaction to be dropped as overdue, got %v", dropped)
	}
	if mp.Len() != 0 {
		t.Fatalf("expected mempool empty after expiring its only transaction")
	}
}

func TestDuplicateOutputNotesRejected(t *testing.T) {
	store := newMockStore()
	mp := New(DefaultConfig(), store)

	noteHeader := types.NoteHeader{ID: digest(5)}
	tx1 := tx(1, 10, types.ZeroDigest, digest(100), 50)
	tx1.OutputNotes = []types.NoteHeader{noteHeader}
	if err := mp.AddTransaction(tx1); err != nil {
		t.Fatalf("tx1: %v", err)
	}

	tx2 := tx(2, 20, types.ZeroDigest, digest(50), 50)
	tx2.OutputNotes = []types.NoteHeader{noteHeader}
	err := mp.AddTransaction(tx2)
	var dupErr *types.DuplicateOutputNotesError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateOutputNotesError, got %v", err)
	}
}
