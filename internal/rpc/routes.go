// Copyright 2025 Certen Protocol

package rpc

import "net/http"

// RegisterStoreRoutes wires the store RPC surface onto mux, one
// mux.HandleFunc call per endpoint rather than a routing framework.
func RegisterStoreRoutes(mux *http.ServeMux, h *StoreHandlers) {
	mux.HandleFunc("/store/transaction-inputs", h.HandleGetTransactionInputs)
	mux.HandleFunc("/store/block-inputs", h.HandleGetBlockInputs)
	mux.HandleFunc("/store/batch-inputs", h.HandleGetBatchInputs)
	mux.HandleFunc("/store/state-sync", h.HandleGetStateSync)
	mux.HandleFunc("/store/nullifiers/by-prefix", h.HandleCheckNullifiersByPrefix)
	mux.HandleFunc("/store/block-header", h.HandleGetBlockHeaderByNumber)
	mux.HandleFunc("/store/account-proofs", h.HandleGetAccountProofs)
	mux.HandleFunc("/store/account-state-delta", h.HandleGetAccountStateDelta)
	mux.HandleFunc("/store/account-details", h.HandleGetAccountDetails)
	mux.HandleFunc("/store/block", h.HandleGetBlockByNumber)
	mux.HandleFunc("/store/apply-block", h.HandleApplyBlock)

	// Internal tree-mutation and lookup endpoints used by a
	// block-producer running as a separate process from the store.
	mux.HandleFunc("/store/account-state", h.HandleAccountState)
	mux.HandleFunc("/store/check-nullifiers", h.HandleCheckNullifiers)
	mux.HandleFunc("/store/note-header", h.HandleGetNoteHeader)
	mux.HandleFunc("/store/apply-account-updates", h.HandleApplyAccountUpdates)
	mux.HandleFunc("/store/apply-nullifiers", h.HandleApplyNullifiers)
	mux.HandleFunc("/store/chain-root", h.HandleChainRoot)
	mux.HandleFunc("/store/previous-header", h.HandlePreviousHeader)
	mux.HandleFunc("/store/account-states", h.HandleAccountStates)
}

// RegisterBlockProducerRoutes wires the block-producer RPC surface
// onto mux.
func RegisterBlockProducerRoutes(mux *http.ServeMux, h *BlockProducerHandlers) {
	mux.HandleFunc("/block-producer/submit-proven-transaction", h.HandleSubmitProvenTransaction)
}
