// Copyright 2025 Certen Protocol
//
// Settings repository - a small key/value table for node-level facts
// that don't warrant their own schema (genesis hash, schema epoch).

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollupnode/node/internal/types"
)

// SettingsRepository handles the node's key/value settings table.
type SettingsRepository struct {
	client *Client
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(client *Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

// Set upserts a single setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := r.client.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// Get retrieves a single setting.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.client.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// F.4 remediation: Return explicit error instead of nil, nil
		return "", fmt.Errorf("setting %q: %w", key, types.ErrDataCorrupted)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}
