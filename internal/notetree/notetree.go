// Copyright 2025 Certen Protocol
//
// Package notetree builds a block's note tree: each batch contributes a
// depth-13 subtree of its output notes, and up to 2^8 batches are placed
// as leaves of a depth-8 super-tree over those subtree roots, for an
// overall depth of 21. Unlike the account/nullifier
// SMTs, this tree is rebuilt from scratch per block rather than mutated
// incrementally — a block's note set is fixed once its batches are
// chosen.
package notetree

import (
	"fmt"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/types"
)

const (
	// BatchSubtreeDepth is the depth of a single batch's note subtree.
	BatchSubtreeDepth = 13
	// SuperTreeDepth is the depth of the tree of batch subtree roots.
	SuperTreeDepth = 8
	// TotalDepth is the overall note tree depth.
	TotalDepth = BatchSubtreeDepth + SuperTreeDepth

	// MaxNotesPerBatch is the leaf capacity of one batch subtree.
	MaxNotesPerBatch = 1 << BatchSubtreeDepth
	// MaxBatchesPerBlock is the leaf capacity of the super-tree.
	MaxBatchesPerBlock = 1 << SuperTreeDepth
)

var emptyAtDepth []types.Digest

func init() {
	emptyAtDepth = make([]types.Digest, TotalDepth+1)
	emptyAtDepth[0] = types.ZeroDigest
	for d := 1; d <= TotalDepth; d++ {
		emptyAtDepth[d] = hash.Merge(emptyAtDepth[d-1], emptyAtDepth[d-1])
	}
}

// EmptyBatchSubtreeRoot is the root of a batch subtree with no notes,
// used by the super-tree for unused batch slots.
func EmptyBatchSubtreeRoot() types.Digest {
	return emptyAtDepth[BatchSubtreeDepth]
}

// BuildBatchSubtree computes the root of one batch's note subtree from
// its output note commitments, in declared order. It errors if the batch
// exceeds MaxNotesPerBatch.
func BuildBatchSubtree(notes []types.NoteHeader) (types.Digest, error) {
	if len(notes) > MaxNotesPerBatch {
		return types.ZeroDigest, fmt.Errorf("notetree: batch has %d notes, max %d", len(notes), MaxNotesPerBatch)
	}
	leaves := make([]types.Digest, len(notes))
	for i, n := range notes {
		leaves[i] = n.ID
	}
	return buildLevel(leaves, BatchSubtreeDepth), nil
}

// BuildBlockNoteTree computes the overall note root for a block from its
// ordered list of per-batch note sets.
func BuildBlockNoteTree(batches []types.BatchNotes) (types.Digest, error) {
	if len(batches) > MaxBatchesPerBlock {
		return types.ZeroDigest, fmt.Errorf("notetree: block has %d batches, max %d", len(batches), MaxBatchesPerBlock)
	}
	subtreeRoots := make([]types.Digest, MaxBatchesPerBlock)
	for i := range subtreeRoots {
		subtreeRoots[i] = EmptyBatchSubtreeRoot()
	}
	for i, b := range batches {
		root, err := BuildBatchSubtree(b.Notes)
		if err != nil {
			return types.ZeroDigest, fmt.Errorf("notetree: batch %d: %w", i, err)
		}
		subtreeRoots[i] = root
	}
	return buildLevel(subtreeRoots, SuperTreeDepth), nil
}

// buildLevel folds a list of leaves up to a tree of the given depth,
// padding missing right-hand siblings with the empty subtree at that
// depth.
func buildLevel(leaves []types.Digest, depth int) types.Digest {
	if depth == 0 {
		if len(leaves) == 0 {
			return emptyAtDepth[0]
		}
		return leaves[0]
	}
	width := 1 << uint(depth)
	level := make([]types.Digest, width)
	for i := range level {
		if i < len(leaves) {
			level[i] = leaves[i]
		} else {
			level[i] = emptyAtDepth[0]
		}
	}
	for d := 0; d < depth; d++ {
		next := make([]types.Digest, len(level)/2)
		for i := range next {
			next[i] = hash.Merge(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

// Proof locates a single note within a built block note tree: its batch
// index, its leaf index within the batch subtree, and the two path
// segments (subtree path, then super-tree path) needed to recompute the
// block note root.
type Proof struct {
	BatchIndex  int
	LeafIndex   int
	SubtreePath []types.Digest // bottom-up, length BatchSubtreeDepth
	SuperPath   []types.Digest // bottom-up, length SuperTreeDepth
}

// OpenNote builds an inclusion proof for the note at leafIndex within
// batches[batchIndex].
func OpenNote(batches []types.BatchNotes, batchIndex, leafIndex int) (Proof, error) {
	if batchIndex < 0 || batchIndex >= len(batches) {
		return Proof{}, fmt.Errorf("notetree: batch index %d out of range", batchIndex)
	}
	notes := batches[batchIndex].Notes
	if leafIndex < 0 || leafIndex >= len(notes) {
		return Proof{}, fmt.Errorf("notetree: leaf index %d out of range", leafIndex)
	}

	leaves := make([]types.Digest, len(notes))
	for i, n := range notes {
		leaves[i] = n.ID
	}
	subtreePath := pathFor(leaves, BatchSubtreeDepth, leafIndex)

	subtreeRoots := make([]types.Digest, MaxBatchesPerBlock)
	for i := range subtreeRoots {
		subtreeRoots[i] = EmptyBatchSubtreeRoot()
	}
	for i, b := range batches {
		root, err := BuildBatchSubtree(b.Notes)
		if err != nil {
			return Proof{}, err
		}
		subtreeRoots[i] = root
	}
	superPath := pathFor(subtreeRoots, SuperTreeDepth, batchIndex)

	return Proof{
		BatchIndex:  batchIndex,
		LeafIndex:   leafIndex,
		SubtreePath: subtreePath,
		SuperPath:   superPath,
	}, nil
}

func pathFor(leaves []types.Digest, depth int, index int) []types.Digest {
	width := 1 << uint(depth)
	level := make([]types.Digest, width)
	for i := range level {
		if i < len(leaves) {
			level[i] = leaves[i]
		} else {
			level[i] = emptyAtDepth[0]
		}
	}
	path := make([]types.Digest, depth)
	idx := index
	for d := 0; d < depth; d++ {
		siblingIdx := idx ^ 1
		path[d] = level[siblingIdx]
		next := make([]types.Digest, len(level)/2)
		for i := range next {
			next[i] = hash.Merge(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return path
}

// VerifyNote recomputes the block note root from a note id and its proof,
// folding the subtree path first and then the super-tree path.
func VerifyNote(noteID types.Digest, proof Proof, expectedRoot types.Digest) bool {
	cur := noteID
	idx := proof.LeafIndex
	for _, sib := range proof.SubtreePath {
		if idx%2 == 0 {
			cur = hash.Merge(cur, sib)
		} else {
			cur = hash.Merge(sib, cur)
		}
		idx /= 2
	}
	idx = proof.BatchIndex
	for _, sib := range proof.SuperPath {
		if idx%2 == 0 {
			cur = hash.Merge(cur, sib)
		} else {
			cur = hash.Merge(sib, cur)
		}
		idx /= 2
	}
	return cur == expectedRoot
}
