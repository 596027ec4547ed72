// Copyright 2025 Certen Protocol
//
// Nullifier repository - permanent record of consumed notes, backing
// CheckNullifiers and CheckNullifiersByPrefix.

package db

import (
	"context"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// NullifierRepository handles nullifier persistence.
type NullifierRepository struct {
	client *Client
}

// NewNullifierRepository creates a new nullifier repository.
func NewNullifierRepository(client *Client) *NullifierRepository {
	return &NullifierRepository{client: client}
}

// InsertNullifier records n as spent at blockNum. Nullifiers are
// write-once: a PRIMARY KEY conflict here means the caller tried to
// double-spend, which should never happen past the block witness
// validation step (invariant 3).
func (r *NullifierRepository) InsertNullifier(ctx context.Context, n types.Nullifier, prefix uint64, blockNum types.BlockNumber) error {
	_, err := r.client.ExecContext(ctx,
		"INSERT INTO nullifiers (nullifier, nullifier_prefix, block_num) VALUES (?, ?, ?)",
		n.Bytes(), prefix, blockNum)
	if err != nil {
		return fmt.Errorf("failed to insert nullifier: %w", err)
	}
	return nil
}

// CheckSpent reports, for each nullifier, the block it was spent in (if
// any).
func (r *NullifierRepository) CheckSpent(ctx context.Context, nullifiers []types.Nullifier) (map[types.Nullifier]types.BlockNumber, error) {
	out := make(map[types.Nullifier]types.BlockNumber, len(nullifiers))
	for _, n := range nullifiers {
		var blockNum types.BlockNumber
		err := r.client.QueryRowContext(ctx,
			"SELECT block_num FROM nullifiers WHERE nullifier = ?", n.Bytes()).Scan(&blockNum)
		if err != nil {
			continue // not found: absent from the result map means unspent
		}
		out[n] = blockNum
	}
	return out, nil
}

// AllSpent returns every recorded nullifier, used to rebuild the
// in-memory nullifier tree at startup.
func (r *NullifierRepository) AllSpent(ctx context.Context) ([]NullifierRecord, error) {
	rows, err := r.client.QueryContext(ctx, "SELECT nullifier, nullifier_prefix, block_num FROM nullifiers")
	if err != nil {
		return nil, fmt.Errorf("failed to query nullifiers: %w", err)
	}
	defer rows.Close()

	var out []NullifierRecord
	for rows.Next() {
		var raw []byte
		var prefix uint64
		var blockNum types.BlockNumber
		if err := rows.Scan(&raw, &prefix, &blockNum); err != nil {
			return nil, fmt.Errorf("failed to scan nullifier row: %w", err)
		}
		n, err := types.DigestFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: nullifier: %v", types.ErrDataCorrupted, err)
		}
		out = append(out, NullifierRecord{Nullifier: n, Prefix: prefix, BlockNum: blockNum})
	}
	return out, rows.Err()
}

// SpentByPrefix returns every (nullifier, block_num) pair whose high
// 16-bit prefix matches any of prefixes, for compact client sync
// polling.
func (r *NullifierRepository) SpentByPrefix(ctx context.Context, prefixes []uint64, fromBlock types.BlockNumber) ([]NullifierRecord, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(prefixes)*2)
	args := make([]any, 0, len(prefixes)+1)
	for i, p := range prefixes {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, p)
	}
	args = append(args, fromBlock)

	query := fmt.Sprintf(`
		SELECT nullifier, nullifier_prefix, block_num FROM nullifiers
		WHERE nullifier_prefix IN (%s) AND block_num >= ?
		ORDER BY block_num ASC`, string(placeholders))

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nullifiers by prefix: %w", err)
	}
	defer rows.Close()

	var out []NullifierRecord
	for rows.Next() {
		var raw []byte
		var prefix uint64
		var blockNum types.BlockNumber
		if err := rows.Scan(&raw, &prefix, &blockNum); err != nil {
			return nil, fmt.Errorf("failed to scan nullifier row: %w", err)
		}
		n, err := types.DigestFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: nullifier: %v", types.ErrDataCorrupted, err)
		}
		out = append(out, NullifierRecord{Nullifier: n, Prefix: prefix, BlockNum: blockNum})
	}
	return out, rows.Err()
}

// NullifierRecord is a single committed nullifier row.
type NullifierRecord struct {
	Nullifier types.Nullifier
	Prefix    uint64
	BlockNum  types.BlockNumber
}
