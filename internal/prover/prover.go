// Copyright 2025 Certen Protocol
//
// Package prover declares the batch and block proving boundary. The
// actual zero-knowledge proving step is out of scope for this node (the
// spec treats it as an external capability); what lives here is the
// interface the batch/block builders call through, plus a deterministic
// stand-in used by tests and local development.
package prover

import (
	"context"

	"github.com/rollupnode/node/internal/types"
)

// BatchProver turns a batch's transactions into a proof attesting its
// declared account/note/nullifier effects are a valid aggregate of its
// member transactions' own proofs.
type BatchProver interface {
	ProveBatch(ctx context.Context, batch *types.Batch) ([]byte, error)
}

// BlockProver turns a block witness into a proof attesting the block's
// header roots are a valid aggregate of its member batches.
type BlockProver interface {
	ProveBlock(ctx context.Context, witnessHash types.Digest, batches []*types.Batch) ([]byte, error)
}

// StubProver is a deterministic BatchProver/BlockProver used by tests and
// local "bundled" deployments that don't wire a real prover service: a
// batch "proof" is the batch id's bytes and a block "proof" is the bytes
// of the witness hash it is given, enough to exercise the rest of the
// pipeline without a real zero-knowledge backend.
type StubProver struct{}

func (StubProver) ProveBatch(ctx context.Context, batch *types.Batch) ([]byte, error) {
	return batch.ID.Bytes(), nil
}

func (StubProver) ProveBlock(ctx context.Context, witnessHash types.Digest, batches []*types.Batch) ([]byte, error) {
	return witnessHash.Bytes(), nil
}
