// Copyright 2025 Certen Protocol
//
// Package blockbuilder drives the periodic block-assembly loop: pull a
// root-eligible group of proven batches from the mempool, assemble and
// validate a witness against the store's reported account states,
// compute the block's header roots, hand the result to a block prover,
// and apply the finished block to the store. A failed block is fatal
//: this package returns the error but
// performs no recovery, leaving that call to the node wiring layer.
package blockbuilder

import (
	"context"
	"fmt"
	"log"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/prover"
	"github.com/rollupnode/node/internal/types"
)

// Store is the store capability the block builder needs beyond
// TreeState: resolving the previous header, the current on-chain state
// of every account a batch set touches, and durably applying the
// finished block.
type Store interface {
	TreeState
	PreviousHeader() (types.BlockHeader, error)
	AccountStates(ids []types.AccountId) (map[uint64]types.Digest, error)
	ApplyBlock(ctx context.Context, block *types.Block) error
}

// Builder owns one block-assembly cycle: select, assemble, prove, apply.
type Builder struct {
	mempool *mempool.Mempool
	store   Store
	prover  prover.BlockProver
	log     *log.Logger
}

// New returns a block builder driving mp and store through p.
func New(mp *mempool.Mempool, store Store, p prover.BlockProver, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{mempool: mp, store: store, prover: p, log: logger}
}

// blockHash canonically commits to a header, used both as the
// "previous block hash" chain-root input and as the MMR leaf appended
// once a block is durable.
func blockHash(h types.BlockHeader) types.Digest {
	return hash.MergeMany([]types.Digest{
		h.PrevHash, h.ChainRoot, h.AccountRoot, h.NullifierRoot, h.NoteRoot, h.TxHash, h.ProofHash,
	})
}

// txHash commits to a block's member batch ids, the header's TxHash
// field.
func txHash(batches []*types.Batch) types.Digest {
	ids := make([]types.Digest, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	return hash.MergeMany(ids)
}

// Tick runs a single select-assemble-prove-apply cycle. Returns ok=false
// when there was nothing eligible to include in a block. By
// empty-block-policy decision, a tick with zero eligible batches builds
// and applies nothing and does not advance the chain; this package has
// no function that produces an empty block.
func (b *Builder) Tick(ctx context.Context) (ok bool, err error) {
	batches, ok := b.mempool.SelectBlock()
	if !ok {
		return false, nil
	}
	block, batchIDs, err := b.assembleAndProve(ctx, batches)
	if err != nil {
		if failErr := b.mempool.BlockFailed(batchIDs, err); failErr != nil {
			b.log.Printf("[BlockBuilder] fatal: %v", failErr)
		}
		return true, err
	}

	if err := b.store.ApplyBlock(ctx, block); err != nil {
		fatalErr := fmt.Errorf("blockbuilder: apply block %d: %w", block.Header.BlockNum, err)
		if failErr := b.mempool.BlockFailed(batchIDs, fatalErr); failErr != nil {
			b.log.Printf("[BlockBuilder] fatal: %v", failErr)
		}
		return true, fatalErr
	}

	if err := b.mempool.BlockCommitted(batchIDs); err != nil {
		return true, fmt.Errorf("blockbuilder: mempool commit bookkeeping for block %d: %w", block.Header.BlockNum, err)
	}
	b.mempool.SetChainTip(block.Header.BlockNum)
	b.log.Printf("[BlockBuilder] block %d committed with %d batches", block.Header.BlockNum, len(batches))
	return true, nil
}

func (b *Builder) assembleAndProve(ctx context.Context, batches []*types.Batch) (*types.Block, []types.BatchID, error) {
	batchIDs := make([]types.BatchID, len(batches))
	ids := make([]types.AccountId, 0)
	seen := make(map[uint64]struct{})
	for i, batch := range batches {
		batchIDs[i] = batch.ID
		for _, u := range batch.AccountUpdates {
			if _, ok := seen[u.AccountID.Prefix]; !ok {
				seen[u.AccountID.Prefix] = struct{}{}
				ids = append(ids, u.AccountID)
			}
		}
	}

	prev, err := b.store.PreviousHeader()
	if err != nil {
		return nil, batchIDs, fmt.Errorf("blockbuilder: previous header: %w", err)
	}
	currentStates, err := b.store.AccountStates(ids)
	if err != nil {
		return nil, batchIDs, fmt.Errorf("blockbuilder: account states: %w", err)
	}

	witness, err := BuildWitness(prev, batches, currentStates)
	if err != nil {
		return nil, batchIDs, fmt.Errorf("blockbuilder: %w", err)
	}

	accountRoot, noteRoot, nullifierRoot, chainRoot, err := ComputeRoots(witness, b.store)
	if err != nil {
		return nil, batchIDs, err
	}

	header := types.BlockHeader{
		PrevHash:      blockHash(prev),
		BlockNum:      prev.BlockNum + 1,
		ChainRoot:     chainRoot,
		AccountRoot:   accountRoot,
		NullifierRoot: nullifierRoot,
		NoteRoot:      noteRoot,
		TxHash:        txHash(batches),
		Version:       prev.Version,
	}

	proof, err := b.prover.ProveBlock(ctx, blockHash(header), batches)
	if err != nil {
		return nil, batchIDs, fmt.Errorf("blockbuilder: proving block %d: %w", header.BlockNum, err)
	}
	header.ProofHash = hash.Digest(proof)

	block := &types.Block{
		Header:             header,
		AccountUpdates:     witness.FoldedAccountUpdates(),
		OutputNotesByBatch: witness.OutputNotesByBatch(),
		Nullifiers:         witness.Nullifiers(header.BlockNum),
	}
	return block, batchIDs, nil
}
