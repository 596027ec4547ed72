// Copyright 2025 Certen Protocol
//
// Read-only accessors backing the store RPC surface:
// transaction/block/batch input assembly for the prover pipeline, state
// sync, and per-account/per-block lookups.

package store

import (
	"context"

	"github.com/rollupnode/node/internal/smt"
	"github.com/rollupnode/node/internal/types"
)

// TransactionInputs answers GetTransactionInputs: the account's current
// hash (if it exists), the consumption status of each nullifier, and
// which unauthenticated note ids the store can vouch for.
type TransactionInputs struct {
	AccountHash           types.Digest
	AccountFound          bool
	NullifierStatus       map[types.Nullifier]*types.BlockNumber // nil value == unspent
	FoundUnauthenticated  map[types.NoteId]bool
}

// GetTransactionInputs implements the store RPC of the same name.
func (s *Store) GetTransactionInputs(ctx context.Context, accountID types.AccountId, nullifiers []types.Nullifier, unauthNoteIDs []types.NoteId) (TransactionInputs, error) {
	s.mu.Lock()
	accountHash, found := types.Digest{}, false
	if s.accounts.tree.Has(accountID.Prefix) {
		accountHash, found = s.accounts.Get(accountID.Prefix), true
	}
	nullifierStatus := make(map[types.Nullifier]*types.BlockNumber, len(nullifiers))
	for _, n := range nullifiers {
		if !s.nullifiers.IsSpent(n) {
			nullifierStatus[n] = nil
			continue
		}
		bn := s.tip.BlockNum
		nullifierStatus[n] = &bn
	}
	s.mu.Unlock()

	foundUnauth := make(map[types.NoteId]bool, len(unauthNoteIDs))
	for _, id := range unauthNoteIDs {
		_, err := s.noteRepo.GetNote(ctx, id)
		foundUnauth[id] = err == nil
	}

	return TransactionInputs{
		AccountHash:          accountHash,
		AccountFound:         found,
		NullifierStatus:      nullifierStatus,
		FoundUnauthenticated: foundUnauth,
	}, nil
}

// AccountWitness is a single account's membership proof against the
// account tree as of the store's current tip.
type AccountWitness struct {
	AccountID types.AccountId
	State     types.Digest
	Proof     smt.Proof
}

// BlockInputs answers GetBlockInputs: the previous header, the chain
// MMR's current peaks, a witness per requested account, a proof per
// requested nullifier, and which unauthenticated notes are known.
type BlockInputs struct {
	PreviousHeader types.BlockHeader
	ChainPeaks     []types.Digest
	AccountWitness []AccountWitness
	NullifierProof []smt.Proof
	FoundNotes     map[types.NoteId]types.NoteHeader
}

// GetBlockInputs implements the store RPC of the same name.
func (s *Store) GetBlockInputs(ctx context.Context, accountIDs []types.AccountId, nullifiers []types.Nullifier, unauthNoteIDs []types.NoteId) (BlockInputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	witnesses := make([]AccountWitness, len(accountIDs))
	for i, id := range accountIDs {
		witnesses[i] = AccountWitness{
			AccountID: id,
			State:     s.accounts.Get(id.Prefix),
			Proof:     s.accounts.tree.Open(id.Prefix),
		}
	}
	proofs := make([]smt.Proof, len(nullifiers))
	for i, n := range nullifiers {
		proofs[i] = s.nullifiers.Open(n)
	}
	found := make(map[types.NoteId]types.NoteHeader)
	for _, id := range unauthNoteIDs {
		if h, err := s.noteRepo.GetNote(ctx, id); err == nil {
			found[id] = h
		}
	}

	return BlockInputs{
		PreviousHeader: s.tip,
		ChainPeaks:     s.chainMMR.Peaks(),
		AccountWitness: witnesses,
		NullifierProof: proofs,
		FoundNotes:     found,
	}, nil
}

// BatchInputs answers GetBatchInputs: a reference header plus proofs
// that a batch's declared unauthenticated notes exist, and the chain
// MMR state to authenticate the reference header itself.
type BatchInputs struct {
	ReferenceHeader types.BlockHeader
	NoteProofs      map[types.NoteId]types.NoteHeader
	ChainPeaks      []types.Digest
}

// GetBatchInputs implements the store RPC of the same name.
func (s *Store) GetBatchInputs(ctx context.Context, noteIDs []types.NoteId, referenceBlock types.BlockNumber) (BatchInputs, error) {
	s.mu.Lock()
	header := s.tip
	peaks := s.chainMMR.Peaks()
	s.mu.Unlock()

	if referenceBlock != 0 && referenceBlock != header.BlockNum {
		h, err := s.blockRepo.GetHeaderByNumber(ctx, referenceBlock)
		if err != nil {
			return BatchInputs{}, err
		}
		header = h
	}

	proofs := make(map[types.NoteId]types.NoteHeader)
	for _, id := range noteIDs {
		if h, err := s.noteRepo.GetNote(ctx, id); err == nil {
			proofs[id] = h
		}
	}
	return BatchInputs{ReferenceHeader: header, NoteProofs: proofs, ChainPeaks: peaks}, nil
}

// StateSyncResult answers GetStateSync. BlockNum and Header are always
// the current tip, not the first block after fromBlock holding a
// matching note; Notes, AccountUpdates and Nullifiers cover every block
// after fromBlock up to that tip.
type StateSyncResult struct {
	BlockNum       types.BlockNumber
	Header         types.BlockHeader
	AccountUpdates map[uint64]types.Digest
	Notes          []types.NoteHeader
	Nullifiers     []NullifierRecord
}

// GetStateSync implements the store RPC of the same name. Note: this
// resolves the sync target to the current tip rather than the earliest
// block containing a matching note; exact earliest-match resolution
// needs note rows to carry their own block_num in NotesByTag's result,
// not just in the matched set.
func (s *Store) GetStateSync(ctx context.Context, fromBlock types.BlockNumber, accountIDs []types.AccountId, noteTagPrefixes []uint32, nullifierPrefixes []uint64) (StateSyncResult, error) {
	s.mu.Lock()
	tip := s.tip.BlockNum
	s.mu.Unlock()

	targetBlock := tip
	var matchedNotes []types.NoteHeader
	for _, tag := range noteTagPrefixes {
		notes, err := s.noteRepo.NotesByTag(ctx, tag, fromBlock+1)
		if err != nil {
			return StateSyncResult{}, err
		}
		for _, n := range notes {
			matchedNotes = append(matchedNotes, n)
		}
	}

	accountUpdates := make(map[uint64]types.Digest, len(accountIDs))
	for _, id := range accountIDs {
		deltas, err := s.accountRepo.DeltasSince(ctx, id.Prefix, fromBlock+1)
		if err != nil {
			return StateSyncResult{}, err
		}
		if len(deltas) > 0 {
			accountUpdates[id.Prefix] = deltas[len(deltas)-1].FinalState
		}
	}

	nullifierRecs, err := s.nullifierRepo.SpentByPrefix(ctx, nullifierPrefixes, fromBlock+1)
	if err != nil {
		return StateSyncResult{}, err
	}

	header, err := s.blockRepo.GetHeaderByNumber(ctx, targetBlock)
	if err != nil {
		return StateSyncResult{}, err
	}

	return StateSyncResult{
		BlockNum:       targetBlock,
		Header:         header,
		AccountUpdates: accountUpdates,
		Notes:          matchedNotes,
		Nullifiers:     nullifierRecs,
	}, nil
}

// CheckNullifiersByPrefix implements the store RPC of the same name.
func (s *Store) CheckNullifiersByPrefix(ctx context.Context, prefixes []uint64, fromBlock types.BlockNumber) ([]NullifierRecord, error) {
	return s.nullifierRepo.SpentByPrefix(ctx, prefixes, fromBlock)
}

// GetBlockHeaderByNumber implements the store RPC of the same name.
// blockNum of nil resolves to the current tip.
func (s *Store) GetBlockHeaderByNumber(ctx context.Context, blockNum *types.BlockNumber, includeMMRProof bool) (types.BlockHeader, []types.Digest, error) {
	s.mu.Lock()
	tip := s.tip
	peaks := s.chainMMR.Peaks()
	s.mu.Unlock()

	n := tip.BlockNum
	if blockNum != nil {
		n = *blockNum
	}
	header := tip
	if n != tip.BlockNum {
		h, err := s.blockRepo.GetHeaderByNumber(ctx, n)
		if err != nil {
			return types.BlockHeader{}, nil, err
		}
		header = h
	}
	if !includeMMRProof {
		return header, nil, nil
	}
	return header, peaks, nil
}

// GetAccountProofs returns a current-state membership proof for each
// requested account.
func (s *Store) GetAccountProofs(accountIDs []types.AccountId) ([]AccountWitness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AccountWitness, len(accountIDs))
	for i, id := range accountIDs {
		out[i] = AccountWitness{
			AccountID: id,
			State:     s.accounts.Get(id.Prefix),
			Proof:     s.accounts.tree.Open(id.Prefix),
		}
	}
	return out, nil
}

// GetAccountStateDelta returns an account's committed state transitions
// within (fromBlock, toBlock].
func (s *Store) GetAccountStateDelta(ctx context.Context, id types.AccountId, fromBlock, toBlock types.BlockNumber) ([]AccountDelta, error) {
	deltas, err := s.accountRepo.DeltasSince(ctx, id.Prefix, fromBlock+1)
	if err != nil {
		return nil, err
	}
	out := deltas[:0]
	for _, d := range deltas {
		if d.BlockNum <= toBlock {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetAccountDetails returns an account's current state and the opening
// proof that justifies it against the current account root.
func (s *Store) GetAccountDetails(id types.AccountId) (AccountWitness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accounts.tree.Has(id.Prefix) {
		return AccountWitness{}, types.ErrAccountNotOnChain
	}
	return AccountWitness{
		AccountID: id,
		State:     s.accounts.Get(id.Prefix),
		Proof:     s.accounts.tree.Open(id.Prefix),
	}, nil
}

// GetBlockByNumber returns a previously committed block's raw blob.
func (s *Store) GetBlockByNumber(blockNum types.BlockNumber) ([]byte, error) {
	return s.blocks.Get(blockNum)
}

// ComputeOpening answers the store's historical-opening contract
//: the account state and Merkle path as of the end of
// blockNum, within the retained window.
func (s *Store) ComputeOpening(prefix uint64, blockNum types.BlockNumber) (types.Digest, smt.Proof, error) {
	return s.accounts.ComputeOpening(prefix, blockNum)
}
