// Copyright 2025 Certen Protocol
//
// AccountTree wraps the account SMT with a bounded history of per-block
// reverse mutation sets, letting compute_opening answer historical
// queries up to UPDATES_DEPTH blocks back without keeping a full
// snapshot per block.

package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rollupnode/node/internal/smt"
	"github.com/rollupnode/node/internal/types"
)

// AccountTreeDepth is the account SMT's key width (64-bit account
// prefixes,  ACCOUNT_TREE_DEPTH).
const AccountTreeDepth = 64

// UpdatesDepth bounds how many recent blocks' reverse mutation sets are
// retained for compute_opening.
const UpdatesDepth = 99

// AccountTree is the authenticated account state tree plus its bounded
// reverse-update history.
type AccountTree struct {
	mu      sync.Mutex
	tree    *smt.Tree
	dataDir string
	tip     types.BlockNumber
	// history holds the reverse mutation set for each retained block,
	// ordered oldest-first; history[i].BlockNum increases monotonically.
	history []blockUpdate
}

type blockUpdate struct {
	BlockNum types.BlockNumber
	Reverse  smt.MutationSet
	Forward  smt.MutationSet
}

// NewAccountTree creates an account tree rooted at dataDir/account_tree.
func NewAccountTree(dataDir string) (*AccountTree, error) {
	dir := filepath.Join(dataDir, "account_tree")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create account tree dir: %w", err)
	}
	return &AccountTree{
		tree:    smt.New(AccountTreeDepth),
		dataDir: dataDir,
	}, nil
}

// LoadCurrentState seeds the tree's live leaves from the relational
// store's current account-state snapshot (called once at startup,
// before LoadHistory).
func (a *AccountTree) LoadCurrentState(states map[uint64]types.Digest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sets := make(map[uint64]types.Digest, len(states))
	for prefix, state := range states {
		sets[prefix] = state
	}
	a.tree.ApplyMutations(sets)
}

// LoadHistory reads up to UpdatesDepth reverse-update files from disk,
// keeping the tree itself untouched (it already reflects the tip,
// loaded via LoadCurrentState).
func (a *AccountTree) LoadHistory(tip types.BlockNumber) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tip = tip

	dir := filepath.Join(a.dataDir, "account_tree")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read account tree history dir: %w", err)
	}

	var blockNums []types.BlockNumber
	for _, e := range entries {
		var n uint32
		if _, err := fmt.Sscanf(e.Name(), "update_%08x.dat", &n); err == nil {
			blockNums = append(blockNums, types.BlockNumber(n))
		}
	}
	sort.Slice(blockNums, func(i, j int) bool { return blockNums[i] < blockNums[j] })

	start := 0
	if len(blockNums) > UpdatesDepth {
		start = len(blockNums) - UpdatesDepth
	}
	a.history = a.history[:0]
	for _, n := range blockNums[start:] {
		reverse, forward, err := readUpdateFile(a.updatePath(n))
		if err != nil {
			return fmt.Errorf("failed to read account tree update %d: %w", n, err)
		}
		a.history = append(a.history, blockUpdate{BlockNum: n, Reverse: reverse, Forward: forward})
	}
	return nil
}

func (a *AccountTree) updatePath(blockNum types.BlockNumber) string {
	return filepath.Join(a.dataDir, "account_tree", fmt.Sprintf("update_%08x.dat", uint32(blockNum)))
}

// ApplyBlock folds updates (account prefix -> new state) into the tree
// for blockNum, persists the reverse mutation set to disk, and
// truncates history older than UpdatesDepth.
func (a *AccountTree) ApplyBlock(blockNum types.BlockNumber, updates map[uint64]types.Digest) (types.Digest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	forward := a.tree.ApplyMutations(updates)
	reverse := smt.Reverse(forward)

	if err := writeUpdateFile(a.updatePath(blockNum), reverse, forward); err != nil {
		// Roll back the in-memory mutation: the disk write is the
		// durability point, a failure here must not leave the tree
		// ahead of what's recoverable on restart.
		a.tree.Apply(reverse)
		return types.Digest{}, fmt.Errorf("failed to persist account tree update for block %d: %w", blockNum, err)
	}

	a.history = append(a.history, blockUpdate{BlockNum: blockNum, Reverse: reverse, Forward: forward})
	a.tip = blockNum
	a.pruneLocked()
	return forward.NewRoot, nil
}

func (a *AccountTree) pruneLocked() {
	if len(a.history) <= UpdatesDepth {
		return
	}
	cut := len(a.history) - UpdatesDepth
	for _, h := range a.history[:cut] {
		_ = os.Remove(a.updatePath(h.BlockNum))
	}
	a.history = a.history[cut:]
}

// Root returns the tree's current root.
func (a *AccountTree) Root() types.Digest {
	return a.tree.Root()
}

// Get returns an account's current state.
func (a *AccountTree) Get(prefix uint64) types.Digest {
	return a.tree.Get(prefix)
}

// ComputeOpening returns the (value, path) that was current at the end
// of blockNum. Out-of-window requests return
// ErrBlockNotFoundInDb.
func (a *AccountTree) ComputeOpening(prefix uint64, blockNum types.BlockNumber) (types.Digest, smt.Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if blockNum > a.tip || (a.tip >= UpdatesDepth && blockNum < a.tip-UpdatesDepth) {
		return types.Digest{}, smt.Proof{}, types.ErrBlockNotFoundInDb
	}
	if blockNum == a.tip {
		return a.tree.Get(prefix), a.tree.Open(prefix), nil
	}

	// Unwind reverse sets from the tip down to (but not including)
	// blockNum, open the leaf, then replay forward to restore the tip.
	idx := len(a.history)
	unwound := 0
	for idx > 0 && a.history[idx-1].BlockNum > blockNum {
		idx--
		a.tree.Apply(a.history[idx].Reverse)
		unwound++
	}
	value := a.tree.Get(prefix)
	proof := a.tree.Open(prefix)
	for i := 0; i < unwound; i++ {
		a.tree.Apply(a.history[idx+i].Forward)
	}
	return value, proof, nil
}

func writeUpdateFile(path string, reverse, forward smt.MutationSet) error {
	buf := encodeMutationSet(reverse)
	buf = append(buf, encodeMutationSet(forward)...)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readUpdateFile(path string) (reverse, forward smt.MutationSet, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return smt.MutationSet{}, smt.MutationSet{}, err
	}
	reverse, rest, err := decodeMutationSet(raw)
	if err != nil {
		return smt.MutationSet{}, smt.MutationSet{}, err
	}
	forward, _, err = decodeMutationSet(rest)
	if err != nil {
		return smt.MutationSet{}, smt.MutationSet{}, err
	}
	return reverse, forward, nil
}

// encodeMutationSet writes: [4-byte count][32-byte root][entries...],
// each entry [8-byte key][32-byte old][32-byte new].
func encodeMutationSet(ms smt.MutationSet) []byte {
	out := make([]byte, 0, 4+32+len(ms.Mutations)*(8+32+32))
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ms.Mutations)))
	out = append(out, countBuf[:]...)
	out = append(out, ms.NewRoot.Bytes()...)
	for _, m := range ms.Mutations {
		var keyBuf [8]byte
		binary.BigEndian.PutUint64(keyBuf[:], m.Key)
		out = append(out, keyBuf[:]...)
		out = append(out, m.OldValue.Bytes()...)
		out = append(out, m.NewValue.Bytes()...)
	}
	return out
}

func decodeMutationSet(raw []byte) (smt.MutationSet, []byte, error) {
	if len(raw) < 4+32 {
		return smt.MutationSet{}, nil, fmt.Errorf("account tree update file truncated")
	}
	count := binary.BigEndian.Uint32(raw[:4])
	root, err := types.DigestFromBytes(raw[4 : 4+32])
	if err != nil {
		return smt.MutationSet{}, nil, err
	}
	rest := raw[4+32:]
	ms := smt.MutationSet{NewRoot: root, Mutations: make([]smt.Mutation, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(rest) < 8+32+32 {
			return smt.MutationSet{}, nil, fmt.Errorf("account tree update file truncated at entry %d", i)
		}
		key := binary.BigEndian.Uint64(rest[:8])
		old, err := types.DigestFromBytes(rest[8 : 8+32])
		if err != nil {
			return smt.MutationSet{}, nil, err
		}
		newV, err := types.DigestFromBytes(rest[8+32 : 8+32+32])
		if err != nil {
			return smt.MutationSet{}, nil, err
		}
		ms.Mutations = append(ms.Mutations, smt.Mutation{Key: key, OldValue: old, NewValue: newV})
		rest = rest[8+32+32:]
	}
	return ms, rest, nil
}
