// Copyright 2025 Certen Protocol

package smt

import (
	"testing"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/types"
)

func digestFromByte(b byte) types.Digest {
	buf := make([]byte, 32)
	buf[31] = b
	d, err := types.DigestFromBytes(buf)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEmptyTreeRootIsStable(t *testing.T) {
	a := New(8)
	b := New(8)
	if a.Root() != b.Root() {
		t.Fatalf("two empty trees of the same depth must share a root")
	}
}

func TestSetChangesRoot(t *testing.T) {
	tr := New(8)
	empty := tr.Root()
	tr.Set(5, digestFromByte(7))
	if tr.Root() == empty {
		t.Fatalf("setting a leaf must change the root")
	}
}

func TestGetRoundTrip(t *testing.T) {
	tr := New(10)
	v := digestFromByte(42)
	tr.Set(123, v)
	if got := tr.Get(123); got != v {
		t.Fatalf("Get returned %v, want %v", got, v)
	}
	if tr.Get(124) != types.ZeroDigest {
		t.Fatalf("untouched key must read as the zero digest")
	}
}

func TestOpenVerifyRoundTrip(t *testing.T) {
	tr := New(12)
	for i, b := range []byte{1, 2, 3, 4, 5} {
		tr.Set(uint64(i*37), digestFromByte(b))
	}
	root := tr.Root()

	for i := range []byte{1, 2, 3, 4, 5} {
		key := uint64(i * 37)
		proof := tr.Open(key)
		if len(proof.Path) != tr.Depth {
			t.Fatalf("proof path length = %d, want %d", len(proof.Path), tr.Depth)
		}
		if !VerifyProof(proof.Value, proof, root) {
			t.Fatalf("VerifyProof failed for key %d", key)
		}
	}
}

func TestOpenVerifyRejectsWrongLeaf(t *testing.T) {
	tr := New(8)
	tr.Set(1, digestFromByte(9))
	root := tr.Root()
	proof := tr.Open(1)
	if VerifyProof(digestFromByte(200), proof, root) {
		t.Fatalf("VerifyProof must reject a substituted leaf value")
	}
}

func TestApplyMutationsAndReverse(t *testing.T) {
	tr := New(6)
	tr.Set(3, digestFromByte(1))
	before := tr.Root()

	ms := tr.ApplyMutations(map[uint64]types.Digest{
		3: digestFromByte(2),
		9: digestFromByte(3),
	})
	if ms.NewRoot != tr.Root() {
		t.Fatalf("ApplyMutations.NewRoot must match the tree's root after applying")
	}
	if ms.NewRoot == before {
		t.Fatalf("root must change after a mutation set is applied")
	}

	rev := Reverse(ms)
	tr.Apply(rev)
	if tr.Root() != before {
		t.Fatalf("applying the reverse mutation set must restore the prior root, got %v want %v", tr.Root(), before)
	}
}

func TestMergeIsOrderSensitive(t *testing.T) {
	a := digestFromByte(1)
	b := digestFromByte(2)
	if hash.Merge(a, b) == hash.Merge(b, a) {
		t.Fatalf("Merge(a, b) must differ from Merge(b, a) for a != b")
	}
}

func TestDeleteByZeroValue(t *testing.T) {
	tr := New(8)
	tr.Set(4, digestFromByte(1))
	empty := New(8).Root()
	tr.Set(4, types.ZeroDigest)
	if tr.Has(4) {
		t.Fatalf("setting a key to the zero digest must remove its leaf")
	}
	if tr.Root() != empty {
		t.Fatalf("tree with all leaves cleared must match a fresh empty tree")
	}
}
