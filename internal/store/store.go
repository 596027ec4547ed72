// Copyright 2025 Certen Protocol
//
// Package store is the node's authenticated, durable state: the account
// and nullifier trees, the chain MMR, the block blob store, and the
// relational schema that indexes all of it. It satisfies both
// mempool.StoreReader (admission-time reads) and blockbuilder.Store
// (block assembly + apply), so the rest of the node never imports
// database/sql directly.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rollupnode/node/internal/hash"
	"github.com/rollupnode/node/internal/mmr"
	"github.com/rollupnode/node/internal/store/db"
	"github.com/rollupnode/node/internal/types"
)

// Store is the node's single authenticated state store.
type Store struct {
	mu sync.Mutex

	client *db.Client
	log    *log.Logger

	blocks     *BlockStore
	accounts   *AccountTree
	nullifiers *NullifierTree
	chainMMR   *mmr.MMR

	blockRepo     *db.BlockRepository
	accountRepo   *db.AccountRepository
	noteRepo      *db.NoteRepository
	nullifierRepo *db.NullifierRepository
	txRepo        *db.TransactionRepository
	settingsRepo  *db.SettingsRepository

	tip types.BlockHeader

	// pending* hold what ApplyAccountUpdates/ApplyNullifiers last applied
	// to the in-memory trees; ApplyBlock clears them after it commits.
	// ApplyBlock persists the rows carried by the block itself, not
	// these fields.
	pendingAccountUpdates []types.AccountUpdate
	pendingNullifiers     []types.ProducedNullifier
}

// Open opens (or creates) the store's data file and tree history under
// dataDir, running pending migrations and rebuilding the in-memory trees
// from durable state. The store must already contain a genesis block
// (written by Bootstrap) before the block-producer pipeline can run.
func Open(ctx context.Context, dataDir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[Store] ", log.LstdFlags)
	}

	client, err := db.NewClient(dataDir, db.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("store: open data file: %w", err)
	}
	if err := client.MigrateUp(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedDatabaseVersion, err)
	}

	blocks, err := NewBlockStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	accounts, err := NewAccountTree(dataDir)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s := &Store{
		client:        client,
		log:           logger,
		blocks:        blocks,
		accounts:      accounts,
		nullifiers:    NewNullifierTree(),
		chainMMR:      mmr.New(),
		blockRepo:     db.NewBlockRepository(client),
		accountRepo:   db.NewAccountRepository(client),
		noteRepo:      db.NewNoteRepository(client),
		nullifierRepo: db.NewNullifierRepository(client),
		txRepo:        db.NewTransactionRepository(client),
		settingsRepo:  db.NewSettingsRepository(client),
	}

	if err := s.rebuildFromDurableState(ctx); err != nil {
		return nil, fmt.Errorf("store: rebuild in-memory state: %w", err)
	}
	return s, nil
}

// rebuildFromDurableState replays the relational schema into the
// in-memory trees and MMR: account current states, every nullifier ever
// recorded, and every committed header's hash in order.
func (s *Store) rebuildFromDurableState(ctx context.Context) error {
	tip, err := s.blockRepo.LatestHeader(ctx)
	if err != nil {
		if err == types.ErrBlockNotFoundInDb {
			// Pre-genesis: nothing to rebuild. Bootstrap must run before
			// the block-producer pipeline starts.
			return nil
		}
		return err
	}
	s.tip = tip

	states, err := s.accountRepo.AllCurrentStates(ctx)
	if err != nil {
		return fmt.Errorf("loading account states: %w", err)
	}
	s.accounts.LoadCurrentState(states)
	if err := s.accounts.LoadHistory(tip.BlockNum); err != nil {
		return fmt.Errorf("loading account history: %w", err)
	}

	spent, err := s.nullifierRepo.AllSpent(ctx)
	if err != nil {
		return fmt.Errorf("loading nullifiers: %w", err)
	}
	for _, rec := range spent {
		if _, err := s.nullifiers.MarkSpent([]types.ProducedNullifier{{Nullifier: rec.Nullifier, BlockNum: rec.BlockNum}}); err != nil {
			return fmt.Errorf("replaying nullifier: %w", err)
		}
	}

	for n := types.BlockNumber(0); n <= tip.BlockNum; n++ {
		h, err := s.blockRepo.GetHeaderByNumber(ctx, n)
		if err != nil {
			return fmt.Errorf("replaying header %d: %w", n, err)
		}
		s.chainMMR.Append(blockHash(h))
	}
	return nil
}

// Bootstrap writes the genesis block (block 0) directly, without going
// through the batch/block pipeline: the initial account states are
// given wholesale rather than folded from transactions.
func (s *Store) Bootstrap(ctx context.Context, genesisAccounts map[uint64]types.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.blockRepo.LatestHeader(ctx); err == nil {
		return fmt.Errorf("store: already bootstrapped")
	}

	s.accounts.LoadCurrentState(genesisAccounts)
	accountRoot := s.accounts.Root()
	noteRoot := types.ZeroDigest
	nullifierRoot := s.nullifiers.Root()
	chainRoot := s.chainMMR.NextChainRoot(types.ZeroDigest)

	header := types.BlockHeader{
		PrevHash:      types.ZeroDigest,
		BlockNum:      0,
		ChainRoot:     chainRoot,
		AccountRoot:   accountRoot,
		NullifierRoot: nullifierRoot,
		NoteRoot:      noteRoot,
		TxHash:        types.ZeroDigest,
		ProofHash:     types.ZeroDigest,
		Version:       1,
		Timestamp:     uint32(time.Now().Unix()),
	}

	if err := s.blockRepo.InsertHeader(ctx, header); err != nil {
		return fmt.Errorf("store: bootstrap: %w", err)
	}
	for prefix, state := range genesisAccounts {
		if err := s.accountRepo.UpsertCurrentState(ctx, types.AccountId{Prefix: prefix}, state, 0); err != nil {
			return fmt.Errorf("store: bootstrap: %w", err)
		}
	}
	if err := s.blocks.Put(0, encodeBlock(&types.Block{Header: header})); err != nil {
		return fmt.Errorf("store: bootstrap: %w", err)
	}
	s.chainMMR.Append(blockHash(header))
	s.tip = header
	return nil
}

// Close releases the underlying data file handle.
func (s *Store) Close() error {
	return s.client.Close()
}

// --- mempool.StoreReader -----------------------------------------------

// AccountState returns an account's current state, and whether it has
// ever been touched.
func (s *Store) AccountState(id types.AccountId) (types.Digest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accounts.tree.Has(id.Prefix) {
		return types.Digest{}, false, nil
	}
	return s.accounts.Get(id.Prefix), true, nil
}

// CheckNullifiers reports, for each nullifier, whether it has already
// been spent.
func (s *Store) CheckNullifiers(nullifiers []types.Nullifier) (map[types.Nullifier]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.Nullifier]bool, len(nullifiers))
	for _, n := range nullifiers {
		out[n] = s.nullifiers.IsSpent(n)
	}
	return out, nil
}

// GetNoteHeader resolves a committed note's header by id.
func (s *Store) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
	h, err := s.noteRepo.GetNote(context.Background(), id)
	if err == types.ErrDataCorrupted {
		return types.NoteHeader{}, false, nil
	}
	if err != nil {
		return types.NoteHeader{}, false, err
	}
	return h, true, nil
}

// --- blockbuilder.TreeState ---------------------------------------------

// ApplyAccountUpdates mutates the account tree in place and records the
// updates in pendingAccountUpdates.
func (s *Store) ApplyAccountUpdates(updates []types.AccountUpdate) (types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := make(map[uint64]types.Digest, len(updates))
	for _, u := range updates {
		sets[u.AccountID.Prefix] = u.FinalState
	}
	root, err := s.accounts.ApplyBlock(s.nextBlockNumLocked(), sets)
	if err != nil {
		return types.Digest{}, err
	}
	s.pendingAccountUpdates = updates
	return root, nil
}

// ApplyNullifiers mutates the nullifier tree in place and records the
// nullifiers in pendingNullifiers.
func (s *Store) ApplyNullifiers(nullifiers []types.ProducedNullifier) (types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.nullifiers.MarkSpent(nullifiers)
	if err != nil {
		return types.Digest{}, err
	}
	s.pendingNullifiers = nullifiers
	return root, nil
}

// ChainRoot bags the current MMR peaks with prevBlockHash, without
// mutating the MMR (the new block's hash is appended only inside
// ApplyBlock, once the block is durable).
func (s *Store) ChainRoot(prevBlockHash types.Digest) (types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainMMR.NextChainRoot(prevBlockHash), nil
}

func (s *Store) nextBlockNumLocked() types.BlockNumber {
	return s.tip.BlockNum + 1
}

// --- blockbuilder.Store ---------------------------------------------------

// PreviousHeader returns the most recently committed header.
func (s *Store) PreviousHeader() (types.BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, nil
}

// AccountStates returns the current on-chain state of every account in
// ids (the zero digest for an account never before touched).
func (s *Store) AccountStates(ids []types.AccountId) (map[uint64]types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]types.Digest, len(ids))
	for _, id := range ids {
		out[id.Prefix] = s.accounts.Get(id.Prefix)
	}
	return out, nil
}

// ApplyBlock durably commits block: it stages the relational rows in
// one transaction, appends the block's hash to the chain MMR (the
// allow_acquire/acquire_done handshake point), then commits the
// transaction and writes the block blob.
func (s *Store) ApplyBlock(ctx context.Context, block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowAcquire := make(chan struct{})
	acquireDone := make(chan struct{})
	commitErr := make(chan error, 1)

	go func() {
		tx, err := s.client.BeginTx(ctx)
		if err != nil {
			commitErr <- fmt.Errorf("begin tx: %w", err)
			close(allowAcquire)
			return
		}
		if err := s.stageBlockRows(ctx, tx, block); err != nil {
			tx.Rollback()
			commitErr <- err
			close(allowAcquire)
			return
		}
		// allow_acquire: the write is staged; the caller may now mutate
		// the chain MMR.
		close(allowAcquire)
		<-acquireDone // acquire_done: the caller finished its mutation
		if err := tx.Commit(); err != nil {
			commitErr <- fmt.Errorf("commit block %d: %w", block.Header.BlockNum, err)
			return
		}
		commitErr <- nil
	}()

	<-allowAcquire
	s.chainMMR.Append(blockHash(block.Header))
	close(acquireDone)

	if err := <-commitErr; err != nil {
		return err
	}

	if err := s.blocks.Put(block.Header.BlockNum, encodeBlock(block)); err != nil {
		return fmt.Errorf("persist block %d blob: %w", block.Header.BlockNum, err)
	}

	s.tip = block.Header
	s.pendingAccountUpdates = nil
	s.pendingNullifiers = nil
	return nil
}

func (s *Store) stageBlockRows(ctx context.Context, tx *db.Tx, block *types.Block) error {
	raw := tx.Tx()
	h := block.Header
	if _, err := raw.ExecContext(ctx, `
		INSERT INTO block_headers (
			block_num, prev_hash, chain_root, account_root, nullifier_root,
			note_root, tx_hash, proof_hash, version, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.BlockNum, h.PrevHash.Bytes(), h.ChainRoot.Bytes(), h.AccountRoot.Bytes(),
		h.NullifierRoot.Bytes(), h.NoteRoot.Bytes(), h.TxHash.Bytes(), h.ProofHash.Bytes(),
		h.Version, h.Timestamp,
	); err != nil {
		return fmt.Errorf("insert header %d: %w", h.BlockNum, err)
	}

	for _, u := range block.AccountUpdates {
		if _, err := raw.ExecContext(ctx, `
			INSERT INTO accounts (account_prefix, account_full, current_state, block_num)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (account_prefix) DO UPDATE SET
				current_state = excluded.current_state, block_num = excluded.block_num`,
			u.AccountID.Prefix, u.AccountID.Full.Bytes(), u.FinalState.Bytes(), h.BlockNum,
		); err != nil {
			return fmt.Errorf("upsert account %s: %w", u.AccountID, err)
		}
		if _, err := raw.ExecContext(ctx, `
			INSERT INTO account_deltas (account_prefix, block_num, init_state, final_state)
			VALUES (?, ?, ?, ?)`,
			u.AccountID.Prefix, h.BlockNum, u.InitState.Bytes(), u.FinalState.Bytes(),
		); err != nil {
			return fmt.Errorf("insert account delta %s: %w", u.AccountID, err)
		}
	}

	for _, pn := range block.Nullifiers {
		if _, err := raw.ExecContext(ctx,
			"INSERT INTO nullifiers (nullifier, nullifier_prefix, block_num) VALUES (?, ?, ?)",
			pn.Nullifier.Bytes(), NullifierPrefix(pn.Nullifier), pn.BlockNum,
		); err != nil {
			return fmt.Errorf("insert nullifier: %w", err)
		}
	}

	for batchIdx, bn := range block.OutputNotesByBatch {
		for noteIdx, note := range bn.Notes {
			if _, err := raw.ExecContext(ctx, `
				INSERT INTO notes (
					note_id, block_num, batch_index, note_index,
					sender, note_type, tag, execution_hint, aux
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				note.ID.Bytes(), h.BlockNum, batchIdx, noteIdx,
				note.Sender.Prefix, uint8(note.Type), note.Tag, note.ExecutionHint, note.Aux,
			); err != nil {
				return fmt.Errorf("insert note %s: %w", note.ID, err)
			}
		}
	}

	return nil
}

func blockHash(h types.BlockHeader) types.Digest {
	return hash.MergeMany([]types.Digest{
		h.PrevHash, h.ChainRoot, h.AccountRoot, h.NullifierRoot, h.NoteRoot, h.TxHash, h.ProofHash,
	})
}

func encodeBlock(b *types.Block) []byte {
	h := b.Header
	out := make([]byte, 0, 256)
	fields := []types.Digest{h.PrevHash, h.ChainRoot, h.AccountRoot, h.NullifierRoot, h.NoteRoot, h.TxHash, h.ProofHash}
	for _, f := range fields {
		out = append(out, f.Bytes()...)
	}
	var numBuf [4]byte
	binary.BigEndian.PutUint32(numBuf[:], uint32(h.BlockNum))
	out = append(out, numBuf[:]...)
	return out
}
