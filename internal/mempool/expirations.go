// Copyright 2025 Certen Protocol

package mempool

import "github.com/rollupnode/node/internal/types"

// ExpirationIndex is the bidirectional tx-id <-> expiration-block map
// used to find transactions that must be dropped once the chain tip
// passes their declared expiration_block.
type ExpirationIndex struct {
	byBlock map[types.BlockNumber]map[types.Digest]struct{}
	byTx    map[types.Digest]types.BlockNumber
}

// NewExpirationIndex returns an empty index.
func NewExpirationIndex() *ExpirationIndex {
	return &ExpirationIndex{
		byBlock: make(map[types.BlockNumber]map[types.Digest]struct{}),
		byTx:    make(map[types.Digest]types.BlockNumber),
	}
}

// Insert records txID as expiring at expiresAt.
func (e *ExpirationIndex) Insert(txID types.Digest, expiresAt types.BlockNumber) {
	if set, ok := e.byBlock[expiresAt]; ok {
		set[txID] = struct{}{}
	} else {
		e.byBlock[expiresAt] = map[types.Digest]struct{}{txID: {}}
	}
	e.byTx[txID] = expiresAt
}

// Remove forgets txID, e.g. once it commits or is dropped for any other
// reason.
func (e *ExpirationIndex) Remove(txID types.Digest) {
	expiresAt, ok := e.byTx[txID]
	if !ok {
		return
	}
	delete(e.byTx, txID)
	if set, ok := e.byBlock[expiresAt]; ok {
		delete(set, txID)
		if len(set) == 0 {
			delete(e.byBlock, expiresAt)
		}
	}
}

// ExpiredAtOrBefore returns every transaction id whose expiration_block
// is <= blockNum, i.e. no longer eligible for inclusion.
func (e *ExpirationIndex) ExpiredAtOrBefore(blockNum types.BlockNumber) []types.Digest {
	var out []types.Digest
	for expiresAt, set := range e.byBlock {
		if expiresAt > blockNum {
			continue
		}
		for txID := range set {
			out = append(out, txID)
		}
	}
	return out
}

// ExpiresAt returns txID's recorded expiration block, if any.
func (e *ExpirationIndex) ExpiresAt(txID types.Digest) (types.BlockNumber, bool) {
	b, ok := e.byTx[txID]
	return b, ok
}
