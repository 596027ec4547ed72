// Copyright 2025 Certen Protocol
//
// Package mempool is the block-producer's inflight dependency tracker:
// it admits proven transactions, groups root-eligible ones into batches,
// groups root-eligible batches into blocks, and reverts or commits them
// as batch/block outcomes arrive. A single mutex on Mempool guards every
// field below it — admission, selection and outcome callbacks all run
// under the same lock, matching the kwil-db mempool's single
// sync.Mutex-guarded accounts cache this package generalizes from a
// nonce-chained balance cache to a full account-state/nullifier/note
// admission pipeline.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/types"
)

// StoreReader is the durable-store surface the mempool consults during
// admission: on-chain account state, spent-nullifier checks, and
// authenticated note lookups. The real implementation lives in the store
// package; tests use an in-memory stand-in with the same contract.
type StoreReader interface {
	AccountState(id types.AccountId) (types.Digest, bool, error)
	CheckNullifiers(nullifiers []types.Nullifier) (map[types.Nullifier]bool, error)
	GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error)
}

// Config holds the admission-time windows AddTransaction checks against.
type Config struct {
	// StateRetention is how many blocks behind the chain tip a
	// transaction's reference block may still be (stale-input check).
	StateRetention types.BlockNumber
	// ExpirationSlack widens the expiration check past the immediate
	// next block: a transaction is rejected unless its expiration_block
	// is greater than next_block plus this many blocks.
	ExpirationSlack types.BlockNumber
	// MaxTxPerBatch caps a single SelectBatch call.
	MaxTxPerBatch int
	// MaxBatchesPerBlock caps a single SelectBlock call.
	MaxBatchesPerBlock int
}

// DefaultConfig mirrors the reference node's defaults.
func DefaultConfig() Config {
	return Config{
		StateRetention:     100,
		ExpirationSlack:    0,
		MaxTxPerBatch:      8,
		MaxBatchesPerBlock: 64,
	}
}

type batchRecord struct {
	batch *types.Batch
	txIDs []types.Digest
}

// Mempool is the top-level inflight transaction/batch/block tracker.
type Mempool struct {
	mu sync.Mutex

	cfg   Config
	store StoreReader

	chainTip types.BlockNumber

	inflight    *InflightState
	txGraph     *Graph[types.Digest, *types.ProvenTransaction]
	batchGraph  *Graph[types.BatchID, *batchRecord]
	expirations *ExpirationIndex

	txStatus    map[types.Digest]types.TxStatus
	txToBatch   map[types.Digest]types.BatchID
	batchStatus map[types.BatchID]types.BatchStatus

	// accountLastTx tracks, per account prefix, the most recently
	// admitted tx id still inflight — the account-chaining parent edge
	// for the next transaction against that account.
	accountLastTx map[uint64]types.Digest
}

// New returns an empty mempool backed by store.
func New(cfg Config, store StoreReader) *Mempool {
	return &Mempool{
		cfg:           cfg,
		store:         store,
		inflight:      NewInflightState(),
		txGraph:       NewGraph[types.Digest, *types.ProvenTransaction](),
		batchGraph:    NewGraph[types.BatchID, *batchRecord](),
		expirations:   NewExpirationIndex(),
		txStatus:      make(map[types.Digest]types.TxStatus),
		txToBatch:     make(map[types.Digest]types.BatchID),
		batchStatus:   make(map[types.BatchID]types.BatchStatus),
		accountLastTx: make(map[uint64]types.Digest),
	}
}

// SetChainTip advances the mempool's view of the chain tip, used by the
// staleness check. Callers update this after a block commits.
func (mp *Mempool) SetChainTip(tip types.BlockNumber) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.chainTip = tip
}

// AddTransaction runs the full admission pipeline, in order:
// stale-input check, expiration check, account-state chaining,
// nullifier double-spend checks, duplicate-output-note checks, and
// unauthenticated-input-note resolution. On success the transaction is
// inserted into the dependency graph and its effects applied to the
// inflight working set.
func (mp *Mempool) AddTransaction(tx *types.ProvenTransaction) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.txGraph.Has(tx.ID) {
		return nil // already admitted; idempotent resubmission
	}

	// 1. Stale inputs: the transaction's reference block has fallen out
	// of the retention window.
	if tx.BlockRef+mp.cfg.StateRetention < mp.chainTip {
		return fmt.Errorf("tx %s: %w", tx.ID, types.ErrStaleInputs)
	}

	// 2. Expiration: the transaction expires at or before the next block
	// plus the configured slack.
	nextBlock := mp.chainTip + 1
	if tx.ExpirationBlock <= nextBlock+mp.cfg.ExpirationSlack {
		return fmt.Errorf("tx %s: %w", tx.ID, types.ErrExpired)
	}

	// 3. Account-state chaining.
	expected, haveInflight := mp.inflight.ProjectedState(tx.AccountID.Prefix)
	if !haveInflight {
		onChain, found, err := mp.store.AccountState(tx.AccountID)
		if err != nil {
			return fmt.Errorf("tx %s: account state lookup: %w", tx.ID, err)
		}
		if found {
			expected = onChain
		} else {
			expected = types.ZeroDigest
		}
	}
	if tx.InitState != expected {
		return fmt.Errorf("tx %s: %w", tx.ID, &types.InvalidAccountStateError{Current: expected, Expected: tx.InitState})
	}

	// 4. Nullifier double-spend checks: inflight, then durable store.
	nullifiers := tx.Nullifiers()
	var alreadySpent []types.Nullifier
	var toCheckInStore []types.Nullifier
	for _, n := range nullifiers {
		if _, claimed := mp.inflight.NullifierClaimedBy(n); claimed {
			alreadySpent = append(alreadySpent, n)
			continue
		}
		toCheckInStore = append(toCheckInStore, n)
	}
	if len(toCheckInStore) > 0 {
		spent, err := mp.store.CheckNullifiers(toCheckInStore)
		if err != nil {
			return fmt.Errorf("tx %s: nullifier check: %w", tx.ID, err)
		}
		for n, isSpent := range spent {
			if isSpent {
				alreadySpent = append(alreadySpent, n)
			}
		}
	}
	if len(alreadySpent) > 0 {
		return fmt.Errorf("tx %s: %w", tx.ID, &types.NotesAlreadyConsumedError{Nullifiers: alreadySpent})
	}

	// 5. Duplicate output notes, checked against every other inflight
	// producer (a note id may only ever be produced once).
	var duplicates []types.NoteId
	for _, n := range tx.OutputNotes {
		if _, produced := mp.inflight.NoteProducedBy(n.ID); produced {
			duplicates = append(duplicates, n.ID)
		}
	}
	if len(duplicates) > 0 {
		return fmt.Errorf("tx %s: %w", tx.ID, &types.DuplicateOutputNotesError{NoteIDs: duplicates})
	}

	// 6. Unauthenticated input notes: the transaction carries a header
	// for a note the store doesn't yet know about. Resolve it against
	// either the store or another inflight producer; record the
	// producer's tx id as an extra graph parent when inflight.
	var extraParents []types.Digest
	var unresolved []types.NoteId
	for _, in := range tx.UnauthenticatedInputs() {
		if _, found, err := mp.store.GetNoteHeader(in.ID); err == nil && found {
			continue
		} else if err != nil {
			return fmt.Errorf("tx %s: note lookup: %w", tx.ID, err)
		}
		if producer, ok := mp.inflight.NoteProducedBy(in.ID); ok {
			extraParents = append(extraParents, producer)
			continue
		}
		unresolved = append(unresolved, in.ID)
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("tx %s: %w", tx.ID, &types.UnauthenticatedNotesNotFoundError{NoteIDs: unresolved})
	}

	// Admission succeeded: wire the account-chain parent edge plus any
	// note-producer parent edges, then record the transaction's effects.
	parents := extraParents
	if last, ok := mp.accountLastTx[tx.AccountID.Prefix]; ok {
		parents = append(parents, last)
	}
	mp.txGraph.Insert(tx.ID, tx, parents)
	mp.inflight.Apply(tx)
	mp.expirations.Insert(tx.ID, tx.ExpirationBlock)
	mp.txStatus[tx.ID] = types.TxInQueue
	mp.accountLastTx[tx.AccountID.Prefix] = tx.ID

	return nil
}

// SelectBatch picks up to cfg.MaxTxPerBatch root-eligible transactions,
// smallest id first for deterministic tie-breaking, and groups them
// into a new batch. Returns ok=false if there is nothing eligible to
// batch.
func (mp *Mempool) SelectBatch() (*types.Batch, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var roots []types.Digest
	for _, id := range mp.txGraph.Roots(func(p types.Digest) bool {
		return mp.txStatus[p] == types.TxInQueue
	}) {
		if mp.txStatus[id] == types.TxInQueue {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		return nil, false
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Cmp(roots[j]) < 0 })
	if len(roots) > mp.cfg.MaxTxPerBatch {
		roots = roots[:mp.cfg.MaxTxPerBatch]
	}

	batch := &types.Batch{Transactions: make([]*types.ProvenTransaction, 0, len(roots))}
	acctFirst := make(map[uint64]types.Digest)
	acctLast := make(map[uint64]types.Digest)
	acctID := make(map[uint64]types.AccountId)
	var txIDs []types.Digest
	parentBatches := make(map[types.BatchID]struct{})

	for _, id := range roots {
		tx, _ := mp.txGraph.Get(id)
		batch.Transactions = append(batch.Transactions, tx)
		txIDs = append(txIDs, id)

		prefix := tx.AccountID.Prefix
		if _, ok := acctFirst[prefix]; !ok {
			acctFirst[prefix] = tx.InitState
		}
		acctLast[prefix] = tx.FinalState
		acctID[prefix] = tx.AccountID

		batch.InputNotes = append(batch.InputNotes, tx.Nullifiers()...)
		batch.OutputNotes = append(batch.OutputNotes, tx.OutputNotes...)

		for _, p := range mp.txGraph.Parents(id) {
			if bID, ok := mp.txToBatch[p]; ok {
				parentBatches[bID] = struct{}{}
			}
		}

		mp.txStatus[id] = types.TxBatched
	}

	for prefix, id := range acctID {
		batch.AccountUpdates = append(batch.AccountUpdates, types.AccountUpdate{
			AccountID:  id,
			InitState:  acctFirst[prefix],
			FinalState: acctLast[prefix],
		})
	}

	ids := make([]types.Digest, len(txIDs))
	copy(ids, txIDs)
	batch.ID = hash.MergeMany(ids)

	var parents []types.BatchID
	for p := range parentBatches {
		parents = append(parents, p)
	}
	mp.batchGraph.Insert(batch.ID, &batchRecord{batch: batch, txIDs: txIDs}, parents)
	mp.batchStatus[batch.ID] = types.BatchInflight
	for _, id := range txIDs {
		mp.txToBatch[id] = batch.ID
	}

	return batch, true
}

// BatchProved records a successful proving outcome for a batch: every
// member transaction advances to Proven status. The batch remains in the
// dependency graph until a block including it commits.
func (mp *Mempool) BatchProved(batchID types.BatchID, proof []byte) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	rec, ok := mp.batchGraph.Get(batchID)
	if !ok {
		return fmt.Errorf("mempool: batch %s: %w", batchID, types.ErrBatchNotFound)
	}
	rec.batch.Proof = proof
	mp.batchStatus[batchID] = types.BatchProven
	for _, id := range rec.txIDs {
		mp.txStatus[id] = types.TxProven
	}
	return nil
}

// BatchFailed reverts a batch and every batch depending on it: their
// transactions' inflight account/nullifier/note effects are undone and
// removed from the dependency graph, freeing their inputs for reuse by a
// future (re-submitted) transaction. Non-fatal: the node continues
// operating.
func (mp *Mempool) BatchFailed(batchID types.BatchID, cause error) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	failedBatches := append([]types.BatchID{batchID}, mp.batchGraph.Descendants(batchID)...)

	txSet := make(map[types.Digest]struct{})
	var queue []types.Digest
	for _, bID := range failedBatches {
		rec, ok := mp.batchGraph.Get(bID)
		if !ok {
			continue
		}
		for _, id := range rec.txIDs {
			if _, dup := txSet[id]; !dup {
				txSet[id] = struct{}{}
				queue = append(queue, id)
			}
		}
	}
	// Any unbatched tx-graph descendant of a failed transaction must
	// fail too, even if it hasn't been selected into a batch yet.
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, d := range mp.txGraph.Descendants(id) {
			if mp.txStatus[d] != types.TxInQueue {
				continue
			}
			if _, dup := txSet[d]; dup {
				continue
			}
			txSet[d] = struct{}{}
			queue = append(queue, d)
		}
	}

	for id := range txSet {
		tx, ok := mp.txGraph.Get(id)
		if ok {
			mp.inflight.Revert(tx)
		}
		mp.txGraph.Remove(id)
		mp.expirations.Remove(id)
		delete(mp.txStatus, id)
		delete(mp.txToBatch, id)
		if mp.accountLastTx[tx.AccountID.Prefix] == id {
			delete(mp.accountLastTx, tx.AccountID.Prefix)
		}
	}
	for _, bID := range failedBatches {
		mp.batchGraph.Remove(bID)
		delete(mp.batchStatus, bID)
	}

	return fmt.Errorf("mempool: batch %s failed: %w", batchID, cause)
}

// SelectBlock picks up to cfg.MaxBatchesPerBlock root-eligible batches
// (smallest id first), requiring each to already be BatchProven.
func (mp *Mempool) SelectBlock() ([]*types.Batch, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var roots []types.BatchID
	for _, id := range mp.batchGraph.Roots(func(p types.BatchID) bool {
		return mp.batchStatus[p] == types.BatchInflight
	}) {
		if mp.batchStatus[id] == types.BatchProven {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 {
		return nil, false
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Cmp(roots[j]) < 0 })
	if len(roots) > mp.cfg.MaxBatchesPerBlock {
		roots = roots[:mp.cfg.MaxBatchesPerBlock]
	}

	batches := make([]*types.Batch, len(roots))
	for i, id := range roots {
		rec, _ := mp.batchGraph.Get(id)
		batches[i] = rec.batch
		mp.batchStatus[id] = types.BatchBlocked
		for _, txID := range rec.txIDs {
			mp.txStatus[txID] = types.TxBlocked
		}
	}
	return batches, true
}

// BlockCommitted finalizes the given batches: their transactions'
// account transitions are committed and immediately pruned (the node
// wiring layer only calls this once the store has durably applied the
// block — see store.ApplyBlock's two-signal handshake), and every node
// is removed from the dependency graphs.
func (mp *Mempool) BlockCommitted(batchIDs []types.BatchID) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, bID := range batchIDs {
		rec, ok := mp.batchGraph.Get(bID)
		if !ok {
			return fmt.Errorf("mempool: committed batch %s: %w", bID, types.ErrBatchNotFound)
		}
		for _, txID := range rec.txIDs {
			tx, ok := mp.txGraph.Get(txID)
			if !ok {
				continue
			}
			mp.inflight.Commit(tx.AccountID.Prefix, 1)
			mp.inflight.PruneCommitted(tx.AccountID.Prefix, 1)
			mp.txGraph.Remove(txID)
			mp.expirations.Remove(txID)
			delete(mp.txStatus, txID)
			delete(mp.txToBatch, txID)
			if mp.accountLastTx[tx.AccountID.Prefix] == txID {
				delete(mp.accountLastTx, tx.AccountID.Prefix)
			}
		}
		mp.batchGraph.Remove(bID)
		delete(mp.batchStatus, bID)
	}
	return nil
}

// BlockFailed reports a fatal block-assembly failure. By
// resolved Open Question, a failed block is unrecoverable: the mempool
// performs no revert here, and the caller is expected to stop the node
// rather than attempt to continue with inconsistent state.
func (mp *Mempool) BlockFailed(batchIDs []types.BatchID, cause error) error {
	return fmt.Errorf("mempool: block failed (fatal, unrecoverable): %w", cause)
}

// ChainTip returns the mempool's current view of the chain tip, as last
// set by SetChainTip.
func (mp *Mempool) ChainTip() types.BlockNumber {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.chainTip
}

// Len reports the number of transactions currently tracked (any status).
func (mp *Mempool) Len() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.txGraph.Len()
}

// ExpireOverdue drops every inflight transaction whose expiration_block
// is at or before the chain tip, reverting their effects the same way a
// failed batch would. Intended to run periodically alongside batch/block
// selection.
func (mp *Mempool) ExpireOverdue() []types.Digest {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	overdue := mp.expirations.ExpiredAtOrBefore(mp.chainTip)
	toDrop := make(map[types.Digest]struct{})
	for _, id := range overdue {
		if mp.txStatus[id] != types.TxInQueue {
			continue // already batched; let batch/block outcomes handle it
		}
		toDrop[id] = struct{}{}
		for _, d := range mp.txGraph.Descendants(id) {
			if mp.txStatus[d] == types.TxInQueue {
				toDrop[d] = struct{}{}
			}
		}
	}

	var dropped []types.Digest
	for id := range toDrop {
		tx, ok := mp.txGraph.Get(id)
		if !ok {
			continue
		}
		mp.inflight.Revert(tx)
		mp.txGraph.Remove(id)
		mp.expirations.Remove(id)
		delete(mp.txStatus, id)
		if mp.accountLastTx[tx.AccountID.Prefix] == id {
			delete(mp.accountLastTx, tx.AccountID.Prefix)
		}
		dropped = append(dropped, id)
	}
	return dropped
}
