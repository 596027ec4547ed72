// Copyright 2025 Certen Protocol

package store

import (
	"context"
	"os"
	"testing"

	"github.com/rollupnode/node/internal/types"
)

func digest(b byte) types.Digest {
	buf := make([]byte, 32)
	buf[31] = b
	d, _ := types.DigestFromBytes(buf)
	return d
}

func TestBlockStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlockStore(dir)
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	raw := []byte("block-17-bytes")
	if err := bs.Put(17, raw); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := bs.Get(17)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(raw) {
		t.Fatalf("got %q, want %q", got, raw)
	}
	if !bs.Has(17) {
		t.Fatal("expected Has(17) true")
	}
	if bs.Has(18) {
		t.Fatal("expected Has(18) false")
	}
}

func TestBlockStoreMissingBlockIsNamedError(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlockStore(dir)
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	_, err = bs.Get(5)
	if err != types.ErrBlockNotFoundInDb {
		t.Fatalf("expected ErrBlockNotFoundInDb, got %v", err)
	}
}

func TestBlockStoreShardsByEpoch(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlockStore(dir)
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	if err := bs.Put(types.BlockNumber(1<<16+3), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(dir + "/blocks/0001/block_00010003.dat"); err != nil {
		t.Fatalf("expected sharded path to exist: %v", err)
	}
}

func TestAccountTreeApplyAndComputeOpening(t *testing.T) {
	dir := t.TempDir()
	at, err := NewAccountTree(dir)
	if err != nil {
		t.Fatalf("NewAccountTree: %v", err)
	}

	const prefix = uint64(42)
	states := []types.Digest{digest(1), digest(2), digest(3), digest(4), digest(5)}
	for i, s := range states {
		if _, err := at.ApplyBlock(types.BlockNumber(i+1), map[uint64]types.Digest{prefix: s}); err != nil {
			t.Fatalf("ApplyBlock %d: %v", i+1, err)
		}
	}

	if got := at.Get(prefix); got != states[4] {
		t.Fatalf("tip state = %v, want %v", got, states[4])
	}

	value, proof, err := at.ComputeOpening(prefix, 3)
	if err != nil {
		t.Fatalf("ComputeOpening(3): %v", err)
	}
	if value != states[2] {
		t.Fatalf("historical value at block 3 = %v, want %v", value, states[2])
	}
	if proof.Key != prefix {
		t.Fatalf("proof key = %d, want %d", proof.Key, prefix)
	}

	// the tree must be restored to the tip after a historical query
	if got := at.Get(prefix); got != states[4] {
		t.Fatalf("tree state after ComputeOpening = %v, want tip %v", got, states[4])
	}

	if _, _, err := at.ComputeOpening(prefix, 99); err != types.ErrBlockNotFoundInDb {
		t.Fatalf("expected ErrBlockNotFoundInDb for future block, got %v", err)
	}
}

func TestAccountTreeHistoryPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	at, err := NewAccountTree(dir)
	if err != nil {
		t.Fatalf("NewAccountTree: %v", err)
	}
	if _, err := at.ApplyBlock(1, map[uint64]types.Digest{7: digest(9)}); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	reloaded, err := NewAccountTree(dir)
	if err != nil {
		t.Fatalf("NewAccountTree (reload): %v", err)
	}
	reloaded.LoadCurrentState(map[uint64]types.Digest{7: digest(9)})
	if err := reloaded.LoadHistory(1); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	value, _, err := reloaded.ComputeOpening(7, 1)
	if err != nil {
		t.Fatalf("ComputeOpening after reload: %v", err)
	}
	if value != digest(9) {
		t.Fatalf("reloaded value = %v, want %v", value, digest(9))
	}
}

func TestNullifierTreeMarkSpentRejectsDoubleSpend(t *testing.T) {
	nt := NewNullifierTree()
	n := digest(11)
	if nt.IsSpent(n) {
		t.Fatal("expected unspent before MarkSpent")
	}
	if _, err := nt.MarkSpent([]types.ProducedNullifier{{Nullifier: n, BlockNum: 1}}); err != nil {
		t.Fatalf("MarkSpent: %v", err)
	}
	if !nt.IsSpent(n) {
		t.Fatal("expected spent after MarkSpent")
	}
	if _, err := nt.MarkSpent([]types.ProducedNullifier{{Nullifier: n, BlockNum: 2}}); err == nil {
		t.Fatal("expected double-spend error")
	}
}

func TestMockStoreBlockPipelineRoundTrip(t *testing.T) {
	m := NewMockStore()
	m.SeedAccount(1, digest(1))

	prev, err := m.PreviousHeader()
	if err != nil {
		t.Fatalf("PreviousHeader: %v", err)
	}
	if prev.BlockNum != 0 {
		t.Fatalf("expected pre-genesis BlockNum 0, got %d", prev.BlockNum)
	}

	update := types.AccountUpdate{AccountID: types.AccountId{Prefix: 1}, InitState: digest(1), FinalState: digest(2)}
	accountRoot, err := m.ApplyAccountUpdates([]types.AccountUpdate{update})
	if err != nil {
		t.Fatalf("ApplyAccountUpdates: %v", err)
	}

	header := types.BlockHeader{BlockNum: 1, AccountRoot: accountRoot}
	block := &types.Block{Header: header, AccountUpdates: []types.AccountUpdate{update}}
	if err := m.ApplyBlock(context.Background(), block); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	state, found, err := m.AccountState(types.AccountId{Prefix: 1})
	if err != nil {
		t.Fatalf("AccountState: %v", err)
	}
	if !found || state != digest(2) {
		t.Fatalf("AccountState = (%v, %v), want (%v, true)", state, found, digest(2))
	}
}
