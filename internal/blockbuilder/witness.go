// Copyright 2025 Certen Protocol
//
// witness.go assembles and validates a BlockWitness: the set of batches
// selected for a block plus the account states the store claims are
// currently on-chain for every account those batches touch. Validation
// catches the two ways a selected batch set can be internally
// inconsistent before any root is computed.
package blockbuilder

import (
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

const maxBatchesPerBlock = 1 << 8 // note tree super-tree width

// BlockWitness is everything needed to compute a block's roots and
// assemble its header.
type BlockWitness struct {
	PrevHeader types.BlockHeader
	Batches    []*types.Batch
	// AccountCurrentStates is the store's on-chain state for every
	// account touched by Batches, keyed by account prefix, as of
	// PrevHeader.
	AccountCurrentStates map[uint64]types.Digest
}

// BuildWitness assembles a witness from the selected batches and the
// store's reported current states, validating internal consistency.
func BuildWitness(prev types.BlockHeader, batches []*types.Batch, currentStates map[uint64]types.Digest) (*BlockWitness, error) {
	if len(batches) > maxBatchesPerBlock {
		return nil, fmt.Errorf("blockbuilder: %w: %d batches, max %d", types.ErrTooManyBatchesInBlock, len(batches), maxBatchesPerBlock)
	}

	touched := make(map[uint64]types.AccountId)
	for _, b := range batches {
		for _, u := range b.AccountUpdates {
			touched[u.AccountID.Prefix] = u.AccountID
		}
	}

	var missing []types.AccountId
	for prefix, id := range touched {
		if _, ok := currentStates[prefix]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("blockbuilder: %w: %v", types.ErrInconsistentAccountIds, missing)
	}

	var offenders []types.AccountId
	firstInit := make(map[uint64]types.Digest)
	for _, b := range batches {
		for _, u := range b.AccountUpdates {
			if _, ok := firstInit[u.AccountID.Prefix]; !ok {
				firstInit[u.AccountID.Prefix] = u.InitState
			}
		}
	}
	for prefix, init := range firstInit {
		if currentStates[prefix] != init {
			offenders = append(offenders, touched[prefix])
		}
	}
	if len(offenders) > 0 {
		return nil, fmt.Errorf("blockbuilder: %w: %v", types.ErrInconsistentAccountStates, offenders)
	}

	return &BlockWitness{
		PrevHeader:           prev,
		Batches:              batches,
		AccountCurrentStates: currentStates,
	}, nil
}

// FoldedAccountUpdates collapses the witness's batches into one update
// per account: the earliest InitState and the latest FinalState across
// every batch touching that account, in batch-selection order.
func (w *BlockWitness) FoldedAccountUpdates() []types.AccountUpdate {
	order := make([]uint64, 0)
	first := make(map[uint64]types.Digest)
	last := make(map[uint64]types.Digest)
	ids := make(map[uint64]types.AccountId)
	for _, b := range w.Batches {
		for _, u := range b.AccountUpdates {
			if _, ok := first[u.AccountID.Prefix]; !ok {
				first[u.AccountID.Prefix] = u.InitState
				order = append(order, u.AccountID.Prefix)
				ids[u.AccountID.Prefix] = u.AccountID
			}
			last[u.AccountID.Prefix] = u.FinalState
		}
	}
	out := make([]types.AccountUpdate, len(order))
	for i, prefix := range order {
		out[i] = types.AccountUpdate{AccountID: ids[prefix], InitState: first[prefix], FinalState: last[prefix]}
	}
	return out
}

// Nullifiers flattens every consumed nullifier across the witness's
// batches into the ProducedNullifier records a committed block will
// register, stamped with the block number that will consume them.
func (w *BlockWitness) Nullifiers(blockNum types.BlockNumber) []types.ProducedNullifier {
	var out []types.ProducedNullifier
	for _, b := range w.Batches {
		for _, n := range b.InputNotes {
			out = append(out, types.ProducedNullifier{Nullifier: n, BlockNum: blockNum})
		}
	}
	return out
}

// OutputNotesByBatch returns the witness's batches' output notes grouped
// by batch, in selection order, the shape the note tree builder consumes.
func (w *BlockWitness) OutputNotesByBatch() []types.BatchNotes {
	out := make([]types.BatchNotes, len(w.Batches))
	for i, b := range w.Batches {
		out[i] = types.BatchNotes{BatchID: b.ID, Notes: b.OutputNotes}
	}
	return out
}
