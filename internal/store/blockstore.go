// Copyright 2025 Certen Protocol
//
// Block blob storage: committed blocks are persisted as raw serialized
// binary blobs on the filesystem, sharded by a 4-hex-digit epoch
// prefix, separate from the relational schema that indexes them.

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rollupnode/node/internal/types"
)

// BlockStore persists raw block blobs under <dataDir>/blocks/<epoch>/.
type BlockStore struct {
	root string
}

// NewBlockStore prepares a block store rooted at dataDir.
func NewBlockStore(dataDir string) (*BlockStore, error) {
	root := filepath.Join(dataDir, "blocks")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create block store dir: %w", err)
	}
	return &BlockStore{root: root}, nil
}

func (s *BlockStore) pathFor(blockNum types.BlockNumber) string {
	epoch := uint32(blockNum) >> 16
	dir := filepath.Join(s.root, fmt.Sprintf("%04x", epoch))
	return filepath.Join(dir, fmt.Sprintf("block_%08x.dat", uint32(blockNum)))
}

// Put writes raw, already-serialized block bytes for blockNum.
func (s *BlockStore) Put(blockNum types.BlockNumber, raw []byte) error {
	path := s.pathFor(blockNum)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create epoch shard dir for block %d: %w", blockNum, err)
	}
	// Write to a temp file first so a crash mid-write never leaves a
	// partially-written blob at the final path.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write block %d blob: %w", blockNum, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize block %d blob: %w", blockNum, err)
	}
	return nil
}

// Get reads the raw serialized bytes for blockNum.
func (s *BlockStore) Get(blockNum types.BlockNumber) ([]byte, error) {
	raw, err := os.ReadFile(s.pathFor(blockNum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrBlockNotFoundInDb
		}
		return nil, fmt.Errorf("failed to read block %d blob: %w", blockNum, err)
	}
	return raw, nil
}

// Has reports whether a blob for blockNum exists.
func (s *BlockStore) Has(blockNum types.BlockNumber) bool {
	_, err := os.Stat(s.pathFor(blockNum))
	return err == nil
}
