// Copyright 2025 Certen Protocol

package rpc

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/rollupnode/node/internal/store"
	"github.com/rollupnode/node/internal/types"
)

// StoreHandlers serves the store RPC surface: read-only
// accessors over account, nullifier, note and block state, plus
// ApplyBlock for the block-producer's own writes.
type StoreHandlers struct {
	store *store.Store
	log   *log.Logger
}

// NewStoreHandlers returns handlers backed by s.
func NewStoreHandlers(s *store.Store, logger *log.Logger) *StoreHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[StoreAPI] ", log.LstdFlags)
	}
	return &StoreHandlers{store: s, log: logger}
}

type transactionInputsRequest struct {
	AccountPrefix     uint64          `json:"account_prefix"`
	AccountFull       types.Digest    `json:"account_full"`
	Nullifiers        []types.Digest  `json:"nullifiers"`
	UnauthNoteIDs     []types.Digest  `json:"unauth_note_ids"`
}

// HandleGetTransactionInputs implements GetTransactionInputs.
func (h *StoreHandlers) HandleGetTransactionInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req transactionInputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	accountID := types.AccountId{Prefix: req.AccountPrefix, Full: req.AccountFull}
	result, err := h.store.GetTransactionInputs(r.Context(), accountID, req.Nullifiers, req.UnauthNoteIDs)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, result)
}

type blockInputsRequest struct {
	AccountIDs    []types.AccountId `json:"account_ids"`
	Nullifiers    []types.Digest    `json:"nullifiers"`
	UnauthNoteIDs []types.Digest    `json:"unauth_note_ids"`
}

// HandleGetBlockInputs implements GetBlockInputs.
func (h *StoreHandlers) HandleGetBlockInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req blockInputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	result, err := h.store.GetBlockInputs(r.Context(), req.AccountIDs, req.Nullifiers, req.UnauthNoteIDs)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, result)
}

type batchInputsRequest struct {
	NoteIDs        []types.Digest    `json:"note_ids"`
	ReferenceBlock types.BlockNumber `json:"reference_block"`
}

// HandleGetBatchInputs implements GetBatchInputs.
func (h *StoreHandlers) HandleGetBatchInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req batchInputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	result, err := h.store.GetBatchInputs(r.Context(), req.NoteIDs, req.ReferenceBlock)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, result)
}

type stateSyncRequest struct {
	FromBlock         types.BlockNumber `json:"from_block"`
	AccountIDs        []types.AccountId `json:"account_ids"`
	NoteTagPrefixes   []uint32          `json:"note_tag_prefixes"`
	NullifierPrefixes []uint64          `json:"nullifier_prefixes"`
}

// HandleGetStateSync implements SyncState.
func (h *StoreHandlers) HandleGetStateSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req stateSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	result, err := h.store.GetStateSync(r.Context(), req.FromBlock, req.AccountIDs, req.NoteTagPrefixes, req.NullifierPrefixes)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, result)
}

type checkNullifiersByPrefixRequest struct {
	Prefixes  []uint64          `json:"prefixes"`
	FromBlock types.BlockNumber `json:"from_block"`
}

// HandleCheckNullifiersByPrefix implements CheckNullifiersByPrefix.
func (h *StoreHandlers) HandleCheckNullifiersByPrefix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req checkNullifiersByPrefixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	records, err := h.store.CheckNullifiersByPrefix(r.Context(), req.Prefixes, req.FromBlock)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, records)
}

// HandleGetBlockHeaderByNumber implements GetBlockHeaderByNumber.
// Query params: block_num (optional, tip if absent), include_mmr_proof.
func (h *StoreHandlers) HandleGetBlockHeaderByNumber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var blockNum *types.BlockNumber
	if raw := r.URL.Query().Get("block_num"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeJSONError(w, "invalid block_num", http.StatusBadRequest)
			return
		}
		bn := types.BlockNumber(n)
		blockNum = &bn
	}
	includeMMRProof := r.URL.Query().Get("include_mmr_proof") == "true"

	header, peaks, err := h.store.GetBlockHeaderByNumber(r.Context(), blockNum, includeMMRProof)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]any{"header": header, "chain_peaks": peaks})
}

type accountProofsRequest struct {
	AccountIDs []types.AccountId `json:"account_ids"`
}

// HandleGetAccountProofs implements GetAccountProofs.
func (h *StoreHandlers) HandleGetAccountProofs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req accountProofsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	witnesses, err := h.store.GetAccountProofs(req.AccountIDs)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, witnesses)
}

// HandleGetAccountStateDelta implements GetAccountStateDelta. Query
// params: account_prefix, from_block, to_block.
func (h *StoreHandlers) HandleGetAccountStateDelta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	prefix, err := strconv.ParseUint(q.Get("account_prefix"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid account_prefix", http.StatusBadRequest)
		return
	}
	fromBlock, err := strconv.ParseUint(q.Get("from_block"), 10, 32)
	if err != nil {
		writeJSONError(w, "invalid from_block", http.StatusBadRequest)
		return
	}
	toBlock, err := strconv.ParseUint(q.Get("to_block"), 10, 32)
	if err != nil {
		writeJSONError(w, "invalid to_block", http.StatusBadRequest)
		return
	}
	deltas, err := h.store.GetAccountStateDelta(r.Context(), types.AccountId{Prefix: prefix},
		types.BlockNumber(fromBlock), types.BlockNumber(toBlock))
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, deltas)
}

// HandleGetAccountDetails implements GetAccountDetails. Query param:
// account_prefix.
func (h *StoreHandlers) HandleGetAccountDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefix, err := strconv.ParseUint(r.URL.Query().Get("account_prefix"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid account_prefix", http.StatusBadRequest)
		return
	}
	witness, err := h.store.GetAccountDetails(types.AccountId{Prefix: prefix})
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, witness)
}

// HandleGetBlockByNumber implements GetBlockByNumber. Query params:
// block_num (required).
func (h *StoreHandlers) HandleGetBlockByNumber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("block_num")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeJSONError(w, "invalid block_num", http.StatusBadRequest)
		return
	}
	blob, err := h.store.GetBlockByNumber(types.BlockNumber(n))
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(blob)
}

// HandleAccountState implements the mempool.StoreReader AccountState
// lookup as an RPC, for a block-producer running in a separate process
// from the store. Query param: account_prefix.
func (h *StoreHandlers) HandleAccountState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefix, err := strconv.ParseUint(r.URL.Query().Get("account_prefix"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid account_prefix", http.StatusBadRequest)
		return
	}
	state, found, err := h.store.AccountState(types.AccountId{Prefix: prefix})
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]any{"state": state, "found": found})
}

// HandleCheckNullifiers implements the mempool.StoreReader CheckNullifiers
// lookup as an RPC.
func (h *StoreHandlers) HandleCheckNullifiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var nullifiers []types.Digest
	if err := json.NewDecoder(r.Body).Decode(&nullifiers); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	spent, err := h.store.CheckNullifiers(nullifiers)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, spent)
}

// HandleGetNoteHeader implements the mempool.StoreReader GetNoteHeader
// lookup as an RPC. Query param: note_id.
func (h *StoreHandlers) HandleGetNoteHeader(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var id types.Digest
	if err := id.UnmarshalJSON([]byte(`"` + r.URL.Query().Get("note_id") + `"`)); err != nil {
		writeJSONError(w, "invalid note_id", http.StatusBadRequest)
		return
	}
	header, found, err := h.store.GetNoteHeader(id)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]any{"header": header, "found": found})
}

type applyAccountUpdatesRequest struct {
	Updates []types.AccountUpdate `json:"updates"`
}

// HandleApplyAccountUpdates implements the blockbuilder.TreeState
// ApplyAccountUpdates mutation as an RPC, used by a block-producer
// running against a remote store process.
func (h *StoreHandlers) HandleApplyAccountUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req applyAccountUpdatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	root, err := h.store.ApplyAccountUpdates(req.Updates)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]types.Digest{"root": root})
}

type applyNullifiersRequest struct {
	Nullifiers []types.ProducedNullifier `json:"nullifiers"`
}

// HandleApplyNullifiers implements the blockbuilder.TreeState
// ApplyNullifiers mutation as an RPC.
func (h *StoreHandlers) HandleApplyNullifiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req applyNullifiersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	root, err := h.store.ApplyNullifiers(req.Nullifiers)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]types.Digest{"root": root})
}

// HandleChainRoot implements the blockbuilder.TreeState ChainRoot
// computation as an RPC. Query param: prev_block_hash.
func (h *StoreHandlers) HandleChainRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var prevHash types.Digest
	if err := prevHash.UnmarshalJSON([]byte(`"` + r.URL.Query().Get("prev_block_hash") + `"`)); err != nil {
		writeJSONError(w, "invalid prev_block_hash", http.StatusBadRequest)
		return
	}
	root, err := h.store.ChainRoot(prevHash)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, map[string]types.Digest{"root": root})
}

// HandlePreviousHeader implements the blockbuilder.Store PreviousHeader
// accessor as an RPC.
func (h *StoreHandlers) HandlePreviousHeader(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	header, err := h.store.PreviousHeader()
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, header)
}

type accountStatesRequest struct {
	AccountIDs []types.AccountId `json:"account_ids"`
}

// HandleAccountStates implements the blockbuilder.Store AccountStates
// accessor as an RPC.
func (h *StoreHandlers) HandleAccountStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req accountStatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	states, err := h.store.AccountStates(req.AccountIDs)
	if err != nil {
		status, msg := storeStatus(err)
		writeJSONError(w, msg, status)
		return
	}
	writeJSON(w, states)
}

// HandleApplyBlock implements ApplyBlock: the block-producer's own
// write path, kept in its own handler apart from the client-facing read
// accessors above. It is served on the same listener and mux as the
// read RPC.
func (h *StoreHandlers) HandleApplyBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var block types.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}
	if err := h.store.ApplyBlock(r.Context(), &block); err != nil {
		h.log.Printf("[%s] apply_block %d failed: %v", requestID(r.Context()), block.Header.BlockNum, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]types.BlockNumber{"block_num": block.Header.BlockNum})
}
