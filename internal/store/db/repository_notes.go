// Copyright 2025 Certen Protocol
//
// Note repository - committed note headers, queryable by tag for
// client sync.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// NoteRepository handles committed note header persistence.
type NoteRepository struct {
	client *Client
}

// NewNoteRepository creates a new note repository.
func NewNoteRepository(client *Client) *NoteRepository {
	return &NoteRepository{client: client}
}

// InsertNote records a single committed note's header and its position
// within the block's note tree.
func (r *NoteRepository) InsertNote(ctx context.Context, h types.NoteHeader, blockNum types.BlockNumber, batchIndex, noteIndex int) error {
	query := `
		INSERT INTO notes (
			note_id, block_num, batch_index, note_index,
			sender, note_type, tag, execution_hint, aux
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.client.ExecContext(ctx, query,
		h.ID.Bytes(), blockNum, batchIndex, noteIndex,
		h.Sender.Prefix, uint8(h.Type), h.Tag, h.ExecutionHint, h.Aux,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note %s: %w", h.ID, err)
	}
	return nil
}

// GetNote retrieves a single note header by id.
func (r *NoteRepository) GetNote(ctx context.Context, id types.NoteId) (types.NoteHeader, error) {
	var senderPrefix uint64
	var noteType uint8
	var tag uint32
	var hint, aux uint64
	err := r.client.QueryRowContext(ctx, `
		SELECT sender, note_type, tag, execution_hint, aux
		FROM notes WHERE note_id = ?`, id.Bytes()).Scan(&senderPrefix, &noteType, &tag, &hint, &aux)
	if err == sql.ErrNoRows {
		return types.NoteHeader{}, types.ErrDataCorrupted
	}
	if err != nil {
		return types.NoteHeader{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return types.NoteHeader{
		ID:            id,
		Sender:        types.AccountId{Prefix: senderPrefix},
		Type:          types.NoteType(noteType),
		Tag:           tag,
		ExecutionHint: hint,
		Aux:           aux,
	}, nil
}

// NotesByTag returns every committed note header matching tag, used to
// answer client sync requests.
func (r *NoteRepository) NotesByTag(ctx context.Context, tag uint32, fromBlock types.BlockNumber) ([]types.NoteHeader, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT note_id, sender, note_type, execution_hint, aux
		FROM notes WHERE tag = ? AND block_num >= ?
		ORDER BY block_num ASC`, tag, fromBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes for tag %d: %w", tag, err)
	}
	defer rows.Close()

	var out []types.NoteHeader
	for rows.Next() {
		var idRaw []byte
		var senderPrefix uint64
		var noteType uint8
		var hint, aux uint64
		if err := rows.Scan(&idRaw, &senderPrefix, &noteType, &hint, &aux); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		id, err := types.DigestFromBytes(idRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: note id: %v", types.ErrDataCorrupted, err)
		}
		out = append(out, types.NoteHeader{
			ID:            id,
			Sender:        types.AccountId{Prefix: senderPrefix},
			Type:          types.NoteType(noteType),
			Tag:           tag,
			ExecutionHint: hint,
			Aux:           aux,
		})
	}
	return out, rows.Err()
}
