// Copyright 2025 Certen Protocol

package batchbuilder

import (
	"context"
	"errors"
	"log"
	"testing"

	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/types"
)

type fakeStore struct {
	accounts   map[uint64]types.Digest
	nullifiers map[types.Nullifier]bool
	notes      map[types.NoteId]types.NoteHeader
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[uint64]types.Digest),
		nullifiers: make(map[types.Nullifier]bool),
		notes:      make(map[types.NoteId]types.NoteHeader),
	}
}

func (s *fakeStore) AccountState(id types.AccountId) (types.Digest, bool, error) {
	d, ok := s.accounts[id.Prefix]
	return d, ok, nil
}

func (s *fakeStore) CheckNullifiers(ns []types.Nullifier) (map[types.Nullifier]bool, error) {
	out := make(map[types.Nullifier]bool, len(ns))
	for _, n := range ns {
		out[n] = s.nullifiers[n]
	}
	return out, nil
}

func (s *fakeStore) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
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

func sampleTx(id byte) *types.ProvenTransaction {
	return &types.ProvenTransaction{
		ID:              digest(id),
		AccountID:       types.AccountId{Prefix: uint64(id)},
		InitState:       types.ZeroDigest,
		FinalState:      digest(100 + id),
		ExpirationBlock: 1000,
		InputNotes:      []types.InputNote{{Nullifier: digest(id)}},
	}
}

type okProver struct{}

func (okProver) ProveBatch(ctx context.Context, batch *types.Batch) ([]byte, error) {
	return []byte("ok"), nil
}

type failingProver struct{}

func (failingProver) ProveBatch(ctx context.Context, batch *types.Batch) ([]byte, error) {
	return nil, errors.New("circuit overflow")
}

func TestTickNothingToDo(t *testing.T) {
	mp := mempool.New(mempool.DefaultConfig(), newFakeStore())
	b := New(mp, okProver{}, log.Default())
	ok, err := b.Tick(context.Background())
	if ok || err != nil {
		t.Fatalf("expected no-op tick on an empty mempool, got ok=%v err=%v", ok, err)
	}
}

func TestTickProvesAndCommits(t *testing.T) {
	mp := mempool.New(mempool.DefaultConfig(), newFakeStore())
	if err := mp.AddTransaction(sampleTx(1)); err != nil {
		t.Fatalf("add tx: %v", err)
	}
	b := New(mp, okProver{}, log.Default())
	ok, err := b.Tick(context.Background())
	if !ok || err != nil {
		t.Fatalf("expected a successful tick, got ok=%v err=%v", ok, err)
	}
}

func TestTickRevertsOnProverFailure(t *testing.T) {
	mp := mempool.New(mempool.DefaultConfig(), newFakeStore())
	if err := mp.AddTransaction(sampleTx(1)); err != nil {
		t.Fatalf("add tx: %v", err)
	}
	b := New(mp, failingProver{}, log.Default())
	ok, err := b.Tick(context.Background())
	if !ok || err == nil {
		t.Fatalf("expected tick to report the proving error, got ok=%v err=%v", ok, err)
	}
	if mp.Len() != 0 {
		t.Fatalf("expected the reverted transaction to be gone from the mempool, got %d remaining", mp.Len())
	}
}
