// Copyright 2025 Certen Protocol

package blockbuilder

import (
	"context"
	"testing"

	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/mmr"
	"github.com/rollupnode/node/internal/prover"
	"github.com/rollupnode/node/internal/smt"
	"github.com/rollupnode/node/internal/types"
)

const testNullifierDepth = 16

// fakeStore implements both blockbuilder.Store and mempool.StoreReader
// so a single in-memory stand-in can drive an end-to-end test.
type fakeStore struct {
	accountTree *smt.Tree
	nullTree    *smt.Tree
	mmr         *mmr.MMR
	header      types.BlockHeader
	spent       map[types.Nullifier]bool
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		accountTree: smt.New(20),
		nullTree:    smt.New(testNullifierDepth),
		mmr:         mmr.New(),
		spent:       make(map[types.Nullifier]bool),
	}
	s.mmr.Append(types.ZeroDigest) // genesis leaf
	return s
}

func (s *fakeStore) AccountState(id types.AccountId) (types.Digest, bool, error) {
	v := s.accountTree.Get(id.Prefix)
	return v, !v.IsZero(), nil
}

func (s *fakeStore) CheckNullifiers(ns []types.Nullifier) (map[types.Nullifier]bool, error) {
	out := make(map[types.Nullifier]bool, len(ns))
	for _, n := range ns {
		out[n] = s.spent[n]
	}
	return out, nil
}

func (s *fakeStore) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
	return types.NoteHeader{}, false, nil
}

func (s *fakeStore) ApplyAccountUpdates(updates []types.AccountUpdate) (types.Digest, error) {
	for _, u := range updates {
		s.accountTree.Set(u.AccountID.Prefix, u.FinalState)
	}
	return s.accountTree.Root(), nil
}

func (s *fakeStore) ApplyNullifiers(nullifiers []types.ProducedNullifier) (types.Digest, error) {
	var offenders []types.Nullifier
	for _, n := range nullifiers {
		if s.spent[n.Nullifier] {
			offenders = append(offenders, n.Nullifier)
		}
	}
	if len(offenders) > 0 {
		return types.Digest{}, &types.NotesAlreadyConsumedError{Nullifiers: offenders}
	}
	for _, n := range nullifiers {
		s.spent[n.Nullifier] = true
		s.nullTree.Set(nullifierKey(n.Nullifier), digestFromBlockNum(n.BlockNum))
	}
	return s.nullTree.Root(), nil
}

func (s *fakeStore) ChainRoot(prevBlockHash types.Digest) (types.Digest, error) {
	return s.mmr.NextChainRoot(prevBlockHash), nil
}

func (s *fakeStore) PreviousHeader() (types.BlockHeader, error) {
	return s.header, nil
}

func (s *fakeStore) AccountStates(ids []types.AccountId) (map[uint64]types.Digest, error) {
	out := make(map[uint64]types.Digest, len(ids))
	for _, id := range ids {
		out[id.Prefix] = s.accountTree.Get(id.Prefix)
	}
	return out, nil
}

func (s *fakeStore) ApplyBlock(ctx context.Context, block *types.Block) error {
	s.header = block.Header
	s.mmr.Append(blockHash(block.Header))
	return nil
}

func nullifierKey(n types.Nullifier) uint64 {
	w := n.Word()
	return w[0] & ((1 << testNullifierDepth) - 1)
}

func digestFromBlockNum(b types.BlockNumber) types.Digest {
	return types.WordFromUint64s([4]uint64{uint64(b), 0, 0, 0})
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

func sampleTx(id byte, acctPrefix uint64) *types.ProvenTransaction {
	return &types.ProvenTransaction{
		ID:              digest(id),
		AccountID:       types.AccountId{Prefix: acctPrefix},
		InitState:       types.ZeroDigest,
		FinalState:      digest(100 + id),
		ExpirationBlock: 1000,
		InputNotes:      []types.InputNote{{Nullifier: digest(id)}},
	}
}

func TestTickNothingToDo(t *testing.T) {
	store := newFakeStore()
	mp := mempool.New(mempool.DefaultConfig(), store)
	b := New(mp, store, prover.StubProver{}, nil)
	ok, err := b.Tick(context.Background())
	if ok || err != nil {
		t.Fatalf("expected no-op tick on an empty mempool, got ok=%v err=%v", ok, err)
	}
}

func TestTickAssemblesAndCommitsBlock(t *testing.T) {
	store := newFakeStore()
	mp := mempool.New(mempool.DefaultConfig(), store)
	if err := mp.AddTransaction(sampleTx(1, 10)); err != nil {
		t.Fatalf("add tx: %v", err)
	}
	batch, ok := mp.SelectBatch()
	if !ok {
		t.Fatalf("expected a selectable batch")
	}
	if err := mp.BatchProved(batch.ID, []byte("proof")); err != nil {
		t.Fatalf("BatchProved: %v", err)
	}

	b := New(mp, store, prover.StubProver{}, nil)
	ok, err := b.Tick(context.Background())
	if !ok || err != nil {
		t.Fatalf("expected a successful tick, got ok=%v err=%v", ok, err)
	}
	if store.header.BlockNum != 1 {
		t.Fatalf("expected the store to now be at block 1, got %d", store.header.BlockNum)
	}
	if mp.Len() != 0 {
		t.Fatalf("expected the committed transaction to be gone from the mempool, got %d remaining", mp.Len())
	}
	if got := store.accountTree.Get(10); got != digest(101) {
		t.Fatalf("expected account 10's state to be updated to the tx's final state, got %v", got)
	}
}
