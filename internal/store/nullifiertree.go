// Copyright 2025 Certen Protocol
//
// NullifierTree is the authenticated set of consumed notes. Unlike the account tree it never reverts: once a nullifier is
// set, invariant 3 forbids ever unsetting it.

package store

import (
	"fmt"
	"sort"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/smt"
	"github.com/rollupnode/node/internal/types"
)

// NullifierTreeDepth matches the account tree's key width; the tree is
// positioned by a nullifier's low 64 bits, consistent with the 16-bit
// `nullifier_prefix` column the relational schema additionally indexes
// for coarse client-sync filtering.
const NullifierTreeDepth = 64

// nullifierEntry is one full 256-bit nullifier's recorded spend. Several
// entries can share a tree leaf when their low-64-bit keys collide.
type nullifierEntry struct {
	nullifier types.Nullifier
	blockNum  types.BlockNumber
}

// NullifierTree is the nullifier SMT. Uniqueness is defined over the
// full 256-bit nullifier (unlike AccountId, which explicitly designates
// its 64-bit Prefix as the account tree's key), so the tree's low-64-bit
// key only fixes a leaf's position: every full nullifier mapping to
// that key is tracked alongside it, and the leaf's hashed value folds
// all of them together, mirroring a Miden SmtLeaf::Multiple. Two
// nullifiers that happen to share their low 64 bits never alias to the
// same spent/unspent answer.
type NullifierTree struct {
	tree    *smt.Tree
	entries map[uint64][]nullifierEntry
}

// NewNullifierTree creates an empty nullifier tree.
func NewNullifierTree() *NullifierTree {
	return &NullifierTree{
		tree:    smt.New(NullifierTreeDepth),
		entries: make(map[uint64][]nullifierEntry),
	}
}

// NullifierKey extracts the tree key (low 64 bits) from a full
// nullifier digest. Multiple nullifiers may share a key; it only
// determines a leaf's position, not its identity.
func NullifierKey(n types.Nullifier) uint64 {
	return n.Word()[0]
}

// NullifierPrefix extracts the 16-bit prefix the relational schema
// indexes for CheckNullifiersByPrefix.
func NullifierPrefix(n types.Nullifier) uint64 {
	return n.Word()[0] >> 48
}

// IsSpent reports whether the full nullifier n has already been set,
// matching against every entry recorded at n's tree key rather than
// treating the key's mere presence as sufficient.
func (t *NullifierTree) IsSpent(n types.Nullifier) bool {
	for _, e := range t.entries[NullifierKey(n)] {
		if e.nullifier == n {
			return true
		}
	}
	return false
}

// Root returns the tree's current root.
func (t *NullifierTree) Root() types.Digest {
	return t.tree.Root()
}

// MarkSpent records every nullifier in the batch as spent, returning
// the new root. Returns ErrNotesAlreadyConsumed if any nullifier (by
// its full 256-bit value, not merely its tree key) is already recorded:
// this should never happen past block witness validation (invariant 3).
func (t *NullifierTree) MarkSpent(nullifiers []types.ProducedNullifier) (types.Digest, error) {
	for _, pn := range nullifiers {
		if t.IsSpent(pn.Nullifier) {
			return types.Digest{}, fmt.Errorf("%w: nullifier already spent", types.ErrNotesAlreadyConsumed)
		}
	}

	touched := make(map[uint64]struct{}, len(nullifiers))
	for _, pn := range nullifiers {
		key := NullifierKey(pn.Nullifier)
		t.entries[key] = append(t.entries[key], nullifierEntry{nullifier: pn.Nullifier, blockNum: pn.BlockNum})
		touched[key] = struct{}{}
	}

	sets := make(map[uint64]types.Digest, len(touched))
	for key := range touched {
		sets[key] = foldLeaf(t.entries[key])
	}
	ms := t.tree.ApplyMutations(sets)
	return ms.NewRoot, nil
}

// Open returns a proof of the tree's current state at n's key. The
// leaf's Value is the folded multi-entry hash described on
// NullifierTree, not n's own digest; callers checking whether a single
// nullifier is spent should use IsSpent, which disambiguates key
// collisions.
func (t *NullifierTree) Open(n types.Nullifier) smt.Proof {
	return t.tree.Open(NullifierKey(n))
}

// foldLeaf combines every nullifier sharing a tree key into the single
// digest the underlying SMT stores at that key. Entries are sorted by
// full nullifier first so the fold is independent of insertion order.
func foldLeaf(entries []nullifierEntry) types.Digest {
	sorted := append([]nullifierEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].nullifier.Cmp(sorted[j].nullifier) < 0 })
	digests := make([]types.Digest, len(sorted))
	for i, e := range sorted {
		digests[i] = hash.Merge(e.nullifier, types.WordFromUint64s([4]uint64{uint64(e.blockNum), 0, 0, 0}))
	}
	return hash.MergeMany(digests)
}
