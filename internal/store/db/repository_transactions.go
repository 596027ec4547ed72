// Copyright 2025 Certen Protocol
//
// Transaction repository - a thin index from tx id to the block/batch
// that committed it, for client transaction-status lookups.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// TransactionRepository handles committed transaction index persistence.
type TransactionRepository struct {
	client *Client
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// InsertCommitted records that txID, belonging to account prefix, was
// included at (blockNum, batchIndex).
func (r *TransactionRepository) InsertCommitted(ctx context.Context, txID types.Digest, accountPrefix uint64, blockNum types.BlockNumber, batchIndex int) error {
	query := `
		INSERT INTO transactions (tx_id, account_prefix, block_num, batch_index)
		VALUES (?, ?, ?, ?)`
	_, err := r.client.ExecContext(ctx, query, txID.Bytes(), accountPrefix, blockNum, batchIndex)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txID, err)
	}
	return nil
}

// GetCommitted retrieves the commitment record for txID.
func (r *TransactionRepository) GetCommitted(ctx context.Context, txID types.Digest) (CommittedTransaction, error) {
	var accountPrefix uint64
	var blockNum types.BlockNumber
	var batchIndex int
	err := r.client.QueryRowContext(ctx, `
		SELECT account_prefix, block_num, batch_index FROM transactions WHERE tx_id = ?`,
		txID.Bytes()).Scan(&accountPrefix, &blockNum, &batchIndex)
	if err == sql.ErrNoRows {
		// F.4 remediation: Return explicit error instead of nil, nil
		return CommittedTransaction{}, types.ErrTransactionNotFound
	}
	if err != nil {
		return CommittedTransaction{}, fmt.Errorf("failed to get transaction %s: %w", txID, err)
	}
	return CommittedTransaction{
		TxID:          txID,
		AccountPrefix: accountPrefix,
		BlockNum:      blockNum,
		BatchIndex:    batchIndex,
	}, nil
}

// CommittedTransaction is a single committed transaction's index row.
type CommittedTransaction struct {
	TxID          types.Digest
	AccountPrefix uint64
	BlockNum      types.BlockNumber
	BatchIndex    int
}
