// Copyright 2025 Certen Protocol
//
// Package smt implements a depth-parameterized sparse Merkle tree keyed
// by a fixed-width integer prefix, used for both the account tree
// (ACCOUNT_TREE_DEPTH) and the nullifier tree (SMT_DEPTH). It carries
// an explicit empty-subtree constant per depth so "absent" leaves still
// have a well-defined hash, and produces inclusion proofs as an
// ordered sibling-hash path from leaf to root.
package smt

import (
	"fmt"
	"sync"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/types"
)

// Position mirrors merkle.Position: which side of a pair a sibling sits on.
type Position bool

const (
	Left  Position = false
	Right Position = true
)

// ProofNode is one step of a Merkle path: the sibling's hash and side.
type ProofNode struct {
	Hash     types.Digest
	Position Position
}

// Proof is a standard SMT membership/non-membership proof: the path
// from a leaf to the root.
type Proof struct {
	Key   uint64
	Value types.Digest
	Path  []ProofNode // len == Depth, root-to-leaf: Path[0] is the root's child level, Path[Depth-1] the leaf's sibling
}

// emptySubtreeCache memoizes H(empty, empty) at every depth so absent
// leaves don't require materializing a subtree.
type emptySubtreeCache struct {
	mu     sync.Mutex
	values []types.Digest // values[d] = empty subtree hash at depth d (0 == leaf depth)
}

func newEmptySubtreeCache(depth int) *emptySubtreeCache {
	c := &emptySubtreeCache{values: make([]types.Digest, depth+1)}
	c.values[0] = types.ZeroDigest
	for d := 1; d <= depth; d++ {
		c.values[d] = hash.Merge(c.values[d-1], c.values[d-1])
	}
	return c
}

func (c *emptySubtreeCache) at(depth int) types.Digest {
	return c.values[depth]
}

// Tree is a sparse Merkle tree of fixed Depth, keyed by a uint64 prefix
// (the low Depth bits, MSB first). Only non-empty leaves are stored;
// everything else is implicitly the empty-subtree constant.
type Tree struct {
	mu     sync.RWMutex
	Depth  int
	leaves map[uint64]types.Digest // key -> leaf value
	empty  *emptySubtreeCache
}

// New creates an empty tree of the given depth.
func New(depth int) *Tree {
	return &Tree{
		Depth:  depth,
		leaves: make(map[uint64]types.Digest),
		empty:  newEmptySubtreeCache(depth),
	}
}

// Get returns the value at key, or the zero digest if absent.
func (t *Tree) Get(key uint64) types.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.leaves[key]; ok {
		return v
	}
	return types.ZeroDigest
}

// Has reports whether key has a non-empty leaf.
func (t *Tree) Has(key uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.leaves[key]
	return ok
}

// Mutation is one key's old/new leaf value, the unit recorded in a
// MutationSet and its ReverseMutationSet.
type Mutation struct {
	Key      uint64
	OldValue types.Digest
	NewValue types.Digest
}

// MutationSet is an ordered batch of leaf changes to apply atomically.
type MutationSet struct {
	Mutations []Mutation
	NewRoot   types.Digest
}

// Set assigns key's leaf to value, returning the key's previous value.
// Collision checking (invariant 2) is the caller's responsibility: Set itself is a plain
// overwrite, used both for fresh inserts and for updates.
func (t *Tree) Set(key uint64, value types.Digest) types.Digest {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.getLocked(key)
	if value.IsZero() {
		delete(t.leaves, key)
	} else {
		t.leaves[key] = value
	}
	return old
}

func (t *Tree) getLocked(key uint64) types.Digest {
	if v, ok := t.leaves[key]; ok {
		return v
	}
	return types.ZeroDigest
}

// ApplyMutations applies a batch of sets under a single lock and
// returns the MutationSet actually performed (including the discovered
// old values), mirroring a compute_mutations/apply_mutations split.
func (t *Tree) ApplyMutations(sets map[uint64]types.Digest) MutationSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := sortedKeys(sets)
	ms := MutationSet{Mutations: make([]Mutation, 0, len(keys))}
	for _, k := range keys {
		old := t.getLocked(k)
		v := sets[k]
		ms.Mutations = append(ms.Mutations, Mutation{Key: k, OldValue: old, NewValue: v})
		if v.IsZero() {
			delete(t.leaves, k)
		} else {
			t.leaves[k] = v
		}
	}
	ms.NewRoot = t.rootLocked()
	return ms
}

// Reverse returns the mutation set that undoes ms, applied in reverse
// order so overlapping keys unwind correctly.
func Reverse(ms MutationSet) MutationSet {
	rev := MutationSet{Mutations: make([]Mutation, len(ms.Mutations))}
	for i, m := range ms.Mutations {
		rev.Mutations[len(ms.Mutations)-1-i] = Mutation{
			Key:      m.Key,
			OldValue: m.NewValue,
			NewValue: m.OldValue,
		}
	}
	return rev
}

// Apply re-applies a mutation set's NewValue for every key, used both
// to replay a MutationSet and to replay its Reverse.
func (t *Tree) Apply(ms MutationSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range ms.Mutations {
		if m.NewValue.IsZero() {
			delete(t.leaves, m.Key)
		} else {
			t.leaves[m.Key] = m.NewValue
		}
	}
}

// Root computes the current tree root.
func (t *Tree) Root() types.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootLocked()
}

func (t *Tree) rootLocked() types.Digest {
	return t.nodeHash(0, 0)
}

// nodeHash computes the hash of the subtree rooted at (depth, prefix),
// where prefix holds `depth` bits already fixed from the top. depth==0
// is the root; depth==t.Depth are leaves.
func (t *Tree) nodeHash(depth int, prefix uint64) types.Digest {
	if depth == t.Depth {
		return t.getLocked(prefix)
	}
	// Partition stored leaves by whether their next bit (from the top,
	// i.e. bit (Depth-depth-1)) is 0 or 1, recursing only into subtrees
	// that contain at least one non-empty leaf.
	shift := uint(t.Depth - depth - 1)
	hasLeft, hasRight := false, false
	for k := range t.leaves {
		if !keyUnderPrefix(k, prefix, depth, t.Depth) {
			continue
		}
		if (k>>shift)&1 == 0 {
			hasLeft = true
		} else {
			hasRight = true
		}
		if hasLeft && hasRight {
			break
		}
	}
	var left, right types.Digest
	if hasLeft {
		left = t.nodeHash(depth+1, prefix)
	} else {
		left = t.empty.at(t.Depth - depth - 1)
	}
	if hasRight {
		right = t.nodeHash(depth+1, prefix|(1<<shift))
	} else {
		right = t.empty.at(t.Depth - depth - 1)
	}
	return hash.Merge(left, right)
}

func keyUnderPrefix(key, prefix uint64, depth, total int) bool {
	if depth == 0 {
		return true
	}
	shift := uint(total - depth)
	return (key >> shift) == (prefix >> shift)
}

// Open returns the value and Merkle path currently at key.
func (t *Tree) Open(key uint64) Proof {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path := make([]ProofNode, t.Depth)
	for d := t.Depth - 1; d >= 0; d-- {
		shift := uint(t.Depth - d - 1)
		var sib types.Digest
		if ((key >> shift) & 1) == 0 {
			sib = t.nodeHash(d+1, (key|(uint64(1)<<shift))&topMask(t.Depth, d+1))
			path[d] = ProofNode{Hash: sib, Position: Right}
		} else {
			sib = t.nodeHash(d+1, (key&^(uint64(1)<<shift))&topMask(t.Depth, d+1))
			path[d] = ProofNode{Hash: sib, Position: Left}
		}
	}
	return Proof{Key: key, Value: t.getLocked(key), Path: path}
}

// topMask keeps the top `keptDepth` bits of a Depth-bit key.
func topMask(totalDepth, keptDepth int) uint64 {
	if keptDepth >= 64 {
		return ^uint64(0)
	}
	shift := uint(totalDepth - keptDepth)
	return ^((uint64(1) << shift) - 1)
}

// VerifyProof recomputes a root from a leaf value and its proof path.
func VerifyProof(leaf types.Digest, proof Proof, expectedRoot types.Digest) bool {
	cur := leaf
	for d := len(proof.Path) - 1; d >= 0; d-- {
		node := proof.Path[d]
		if node.Position == Left {
			cur = hash.Merge(node.Hash, cur)
		} else {
			cur = hash.Merge(cur, node.Hash)
		}
	}
	return cur == expectedRoot
}

func sortedKeys(m map[uint64]types.Digest) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine: batches are small (<= a few thousand keys)
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// ErrDepthMismatch reports a proof whose path length disagrees with the
// tree it's being checked against. No function in this package returns
// it; VerifyProof does not check the path length.
var ErrDepthMismatch = fmt.Errorf("smt: proof depth mismatch")
