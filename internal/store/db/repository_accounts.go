// Copyright 2025 Certen Protocol
//
// Account repository - current account state plus per-block deltas,
// backing state sync and account state-delta queries.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// AccountRepository handles account state and delta persistence.
type AccountRepository struct {
	client *Client
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(client *Client) *AccountRepository {
	return &AccountRepository{client: client}
}

// UpsertCurrentState records an account's latest known state as of
// blockNum. Called once per touched account per committed block.
func (r *AccountRepository) UpsertCurrentState(ctx context.Context, id types.AccountId, state types.Digest, blockNum types.BlockNumber) error {
	query := `
		INSERT INTO accounts (account_prefix, account_full, current_state, block_num)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_prefix) DO UPDATE SET
			current_state = excluded.current_state,
			block_num = excluded.block_num`
	_, err := r.client.ExecContext(ctx, query, id.Prefix, id.Full.Bytes(), state.Bytes(), blockNum)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", id, err)
	}
	return nil
}

// CurrentState returns an account's latest known state.
func (r *AccountRepository) CurrentState(ctx context.Context, prefix uint64) (types.Digest, error) {
	var raw []byte
	err := r.client.QueryRowContext(ctx,
		"SELECT current_state FROM accounts WHERE account_prefix = ?", prefix).Scan(&raw)
	if err == sql.ErrNoRows {
		// F.4 remediation: a never-seen account is a named error, not
		// a silently-returned zero digest.
		return types.Digest{}, types.ErrAccountNotFound
	}
	if err != nil {
		return types.Digest{}, fmt.Errorf("failed to get account state for prefix %016x: %w", prefix, err)
	}
	return types.DigestFromBytes(raw)
}

// AllCurrentStates returns every account's current state, keyed by
// prefix, used to seed the in-memory account tree at startup.
func (r *AccountRepository) AllCurrentStates(ctx context.Context) (map[uint64]types.Digest, error) {
	rows, err := r.client.QueryContext(ctx, "SELECT account_prefix, current_state FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to query account states: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]types.Digest)
	for rows.Next() {
		var prefix uint64
		var raw []byte
		if err := rows.Scan(&prefix, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		state, err := types.DigestFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: account %016x: %v", types.ErrDataCorrupted, prefix, err)
		}
		out[prefix] = state
	}
	return out, rows.Err()
}

// InsertDelta records a single block's init/final state transition for
// an account, the unit that state sync and account state-delta queries
// read back.
func (r *AccountRepository) InsertDelta(ctx context.Context, prefix uint64, blockNum types.BlockNumber, init, final types.Digest) error {
	query := `
		INSERT INTO account_deltas (account_prefix, block_num, init_state, final_state)
		VALUES (?, ?, ?, ?)`
	_, err := r.client.ExecContext(ctx, query, prefix, blockNum, init.Bytes(), final.Bytes())
	if err != nil {
		return fmt.Errorf("failed to insert account delta for prefix %016x at block %d: %w", prefix, blockNum, err)
	}
	return nil
}

// DeltasSince returns every recorded delta for prefix at or after
// fromBlock, ordered oldest-first, for state sync and account
// state-delta queries.
func (r *AccountRepository) DeltasSince(ctx context.Context, prefix uint64, fromBlock types.BlockNumber) ([]AccountDelta, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT block_num, init_state, final_state FROM account_deltas
		WHERE account_prefix = ? AND block_num >= ?
		ORDER BY block_num ASC`, prefix, fromBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to query account deltas for prefix %016x: %w", prefix, err)
	}
	defer rows.Close()

	var out []AccountDelta
	for rows.Next() {
		var d AccountDelta
		var init, final []byte
		if err := rows.Scan(&d.BlockNum, &init, &final); err != nil {
			return nil, fmt.Errorf("failed to scan account delta: %w", err)
		}
		d.InitState, err = types.DigestFromBytes(init)
		if err != nil {
			return nil, fmt.Errorf("%w: delta init state for prefix %016x: %v", types.ErrDataCorrupted, prefix, err)
		}
		d.FinalState, err = types.DigestFromBytes(final)
		if err != nil {
			return nil, fmt.Errorf("%w: delta final state for prefix %016x: %v", types.ErrDataCorrupted, prefix, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDeltasBefore deletes deltas older than the retention window,
// keeping the table bounded.
func (r *AccountRepository) PruneDeltasBefore(ctx context.Context, cutoff types.BlockNumber) error {
	_, err := r.client.ExecContext(ctx, "DELETE FROM account_deltas WHERE block_num < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune account deltas before block %d: %w", cutoff, err)
	}
	return nil
}

// AccountDelta is a single block's recorded state transition for an
// account.
type AccountDelta struct {
	BlockNum   types.BlockNumber
	InitState  types.Digest
	FinalState types.Digest
}
