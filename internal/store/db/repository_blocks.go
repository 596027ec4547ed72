// Copyright 2025 Certen Protocol
//
// Block header repository - CRUD operations for committed block headers.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// BlockRepository handles block header persistence.
type BlockRepository struct {
	client *Client
}

// NewBlockRepository creates a new block repository.
func NewBlockRepository(client *Client) *BlockRepository {
	return &BlockRepository{client: client}
}

// InsertHeader persists a committed block's header.
func (r *BlockRepository) InsertHeader(ctx context.Context, h types.BlockHeader) error {
	query := `
		INSERT INTO block_headers (
			block_num, prev_hash, chain_root, account_root, nullifier_root,
			note_root, tx_hash, proof_hash, version, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.client.ExecContext(ctx, query,
		h.BlockNum, h.PrevHash.Bytes(), h.ChainRoot.Bytes(), h.AccountRoot.Bytes(),
		h.NullifierRoot.Bytes(), h.NoteRoot.Bytes(), h.TxHash.Bytes(), h.ProofHash.Bytes(),
		h.Version, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block header %d: %w", h.BlockNum, err)
	}
	return nil
}

// GetHeaderByNumber retrieves the header for blockNum.
func (r *BlockRepository) GetHeaderByNumber(ctx context.Context, blockNum types.BlockNumber) (types.BlockHeader, error) {
	query := `
		SELECT prev_hash, chain_root, account_root, nullifier_root,
			note_root, tx_hash, proof_hash, version, timestamp
		FROM block_headers WHERE block_num = ?`

	var prevHash, chainRoot, accountRoot, nullifierRoot, noteRoot, txHash, proofHash []byte
	var version, timestamp uint32
	err := r.client.QueryRowContext(ctx, query, blockNum).Scan(
		&prevHash, &chainRoot, &accountRoot, &nullifierRoot,
		&noteRoot, &txHash, &proofHash, &version, &timestamp,
	)
	if err == sql.ErrNoRows {
		// F.4 remediation: a missing header is always a named error,
		// never a silent (zero value, nil).
		return types.BlockHeader{}, types.ErrBlockNotFoundInDb
	}
	if err != nil {
		return types.BlockHeader{}, fmt.Errorf("failed to get block header %d: %w", blockNum, err)
	}

	header, err := headerFromBytes(blockNum, prevHash, chainRoot, accountRoot, nullifierRoot, txHash, noteRoot, proofHash, version, timestamp)
	if err != nil {
		return types.BlockHeader{}, fmt.Errorf("%w: block %d: %v", types.ErrDataCorrupted, blockNum, err)
	}
	return header, nil
}

// LatestHeader retrieves the most recently committed header, or
// ErrBlockNotFoundInDb if the store is still empty (pre-genesis).
func (r *BlockRepository) LatestHeader(ctx context.Context) (types.BlockHeader, error) {
	var blockNum types.BlockNumber
	err := r.client.QueryRowContext(ctx, "SELECT MAX(block_num) FROM block_headers").Scan(&blockNum)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.BlockHeader{}, types.ErrBlockNotFoundInDb
		}
		return types.BlockHeader{}, fmt.Errorf("failed to find latest block: %w", err)
	}
	return r.GetHeaderByNumber(ctx, blockNum)
}

func headerFromBytes(blockNum types.BlockNumber, prevHash, chainRoot, accountRoot, nullifierRoot, txHash, noteRoot, proofHash []byte, version, timestamp uint32) (types.BlockHeader, error) {
	decode := func(b []byte) (types.Digest, error) { return types.DigestFromBytes(b) }
	prev, err := decode(prevHash)
	if err != nil {
		return types.BlockHeader{}, err
	}
	chain, err := decode(chainRoot)
	if err != nil {
		return types.BlockHeader{}, err
	}
	account, err := decode(accountRoot)
	if err != nil {
		return types.BlockHeader{}, err
	}
	nullifier, err := decode(nullifierRoot)
	if err != nil {
		return types.BlockHeader{}, err
	}
	note, err := decode(noteRoot)
	if err != nil {
		return types.BlockHeader{}, err
	}
	tx, err := decode(txHash)
	if err != nil {
		return types.BlockHeader{}, err
	}
	proof, err := decode(proofHash)
	if err != nil {
		return types.BlockHeader{}, err
	}
	return types.BlockHeader{
		PrevHash:      prev,
		BlockNum:      blockNum,
		ChainRoot:     chain,
		AccountRoot:   account,
		NullifierRoot: nullifier,
		NoteRoot:      note,
		TxHash:        tx,
		ProofHash:     proof,
		Version:       version,
		Timestamp:     timestamp,
	}, nil
}
