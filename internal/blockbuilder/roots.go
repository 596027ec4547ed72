// Copyright 2025 Certen Protocol
//
// roots.go computes a block's four header roots from its witness,
// deterministically and in a fixed order:
// account root (SMT.set per updated account), note root (batch subtrees
// folded into the super-tree), nullifier root (assert-unspent then set),
// chain root (unpack MMR peaks, append the previous block hash,
// repack). Account and nullifier roots mutate long-lived trees the
// store owns; TreeState is the seam between this package and
// internal/store so blockbuilder never has to know about persistence.
package blockbuilder

import (
	"fmt"

	"github.com/rollupnode/node/internal/notetree"
	"github.com/rollupnode/node/internal/types"
)

// TreeState is the store capability blockbuilder needs to turn a witness
// into header roots: mutate the account and nullifier trees, and bag the
// chain MMR. The real implementation lives in internal/store; tests use
// an in-memory stand-in with the same contract.
type TreeState interface {
	// ApplyAccountUpdates sets each account's leaf to its FinalState and
	// returns the resulting account root.
	ApplyAccountUpdates(updates []types.AccountUpdate) (types.Digest, error)
	// ApplyNullifiers asserts every nullifier is currently unspent, then
	// marks it spent at blockNum, returning the resulting nullifier
	// root. Returns an error matching ErrNotesAlreadyConsumed (errors.Is)
	// if any nullifier was already spent — a bug this late in the pipeline (admission should
	// have caught it), but still checked.
	ApplyNullifiers(nullifiers []types.ProducedNullifier) (types.Digest, error)
	// ChainRoot bags the current MMR peaks with prevBlockHash appended,
	// without mutating the MMR (the new block's own hash is appended
	// only after the block commits).
	ChainRoot(prevBlockHash types.Digest) (types.Digest, error)
}

// ComputeRoots derives all four header roots for the block witness w.
func ComputeRoots(w *BlockWitness, tree TreeState) (account, note, nullifier, chain types.Digest, err error) {
	account, err = tree.ApplyAccountUpdates(w.FoldedAccountUpdates())
	if err != nil {
		return types.Digest{}, types.Digest{}, types.Digest{}, types.Digest{}, fmt.Errorf("blockbuilder: account root: %w", err)
	}

	note, err = notetree.BuildBlockNoteTree(w.OutputNotesByBatch())
	if err != nil {
		return types.Digest{}, types.Digest{}, types.Digest{}, types.Digest{}, fmt.Errorf("blockbuilder: note root: %w", err)
	}

	blockNum := w.PrevHeader.BlockNum + 1
	nullifier, err = tree.ApplyNullifiers(w.Nullifiers(blockNum))
	if err != nil {
		return types.Digest{}, types.Digest{}, types.Digest{}, types.Digest{}, fmt.Errorf("blockbuilder: nullifier root: %w", err)
	}

	prevBlockHash := blockHash(w.PrevHeader)
	chain, err = tree.ChainRoot(prevBlockHash)
	if err != nil {
		return types.Digest{}, types.Digest{}, types.Digest{}, types.Digest{}, fmt.Errorf("blockbuilder: chain root: %w", err)
	}

	return account, note, nullifier, chain, nil
}
