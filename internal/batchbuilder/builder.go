// Copyright 2025 Certen Protocol
//
// Package batchbuilder drives the periodic batch-proving loop: pull a
// root-eligible group of transactions from the mempool, hand it to a
// prover, and report the outcome back so the mempool can advance
// (BatchProved) or revert (BatchFailed) its dependency graph.
package batchbuilder

import (
	"context"
	"fmt"
	"log"

	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/prover"
)

// Builder owns one batch-building cycle: select, prove, report.
type Builder struct {
	mempool *mempool.Mempool
	prover  prover.BatchProver
	log     *log.Logger
}

// New returns a batch builder driving mp through prover.
func New(mp *mempool.Mempool, p prover.BatchProver, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{mempool: mp, prover: p, log: logger}
}

// Tick runs a single select-prove-report cycle. Returns ok=false when
// there was nothing eligible to batch.
func (b *Builder) Tick(ctx context.Context) (ok bool, err error) {
	batch, ok := b.mempool.SelectBatch()
	if !ok {
		return false, nil
	}
	b.log.Printf("[BatchBuilder] selected batch %s with %d transactions", batch.ID, len(batch.Transactions))

	proof, err := b.prover.ProveBatch(ctx, batch)
	if err != nil {
		if revertErr := b.mempool.BatchFailed(batch.ID, err); revertErr != nil {
			b.log.Printf("[BatchBuilder] batch %s failed and was reverted: %v", batch.ID, revertErr)
		}
		return true, fmt.Errorf("batchbuilder: proving batch %s: %w", batch.ID, err)
	}

	if err := b.mempool.BatchProved(batch.ID, proof); err != nil {
		return true, fmt.Errorf("batchbuilder: recording proved batch %s: %w", batch.ID, err)
	}
	b.log.Printf("[BatchBuilder] batch %s proved", batch.ID)
	return true, nil
}
