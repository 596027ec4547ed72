// Copyright 2025 Certen Protocol
//
// Package rpc is the thin HTTP mapping layer over the mempool and store.
// Handlers are plain net/http: a writeJSONError helper, and a handler
// struct carrying its dependencies plus a *log.Logger defaulted at
// construction.
package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rollupnode/node/internal/types"
)

// writeJSONError writes a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes v as a JSON 200 response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// admissionStatus maps an admission-pipeline error to the HTTP status and message the
// block-producer RPC returns. Internal server errors never leak their
// underlying message: anything not in this closed set maps
// to a single opaque 500.
func admissionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidAccountState):
		return http.StatusConflict, "invalid account state"
	case errors.Is(err, types.ErrStaleInputs):
		return http.StatusConflict, "stale inputs"
	case errors.Is(err, types.ErrExpired):
		return http.StatusGone, "transaction expired"
	case errors.Is(err, types.ErrNotesAlreadyConsumed):
		return http.StatusConflict, "notes already consumed"
	case errors.Is(err, types.ErrDuplicateOutputNotes):
		return http.StatusConflict, "duplicate output notes"
	case errors.Is(err, types.ErrUnauthenticatedNotesNotFound):
		return http.StatusUnprocessableEntity, "unauthenticated notes not found"
	case errors.Is(err, types.ErrDeserializationFailed):
		return http.StatusBadRequest, "deserialization failed"
	case errors.Is(err, types.ErrInvalidTransactionProof):
		return http.StatusBadRequest, "invalid transaction proof"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// storeStatus maps a store read-path error to an HTTP status.
// Persistent store errors are fatal to the node; by the
// time one reaches here the process is already shutting down, so this
// only needs to pick a reasonable status for the in-flight response.
func storeStatus(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrBlockNotFoundInDb):
		return http.StatusNotFound, "block not found"
	case errors.Is(err, types.ErrAccountNotFound), errors.Is(err, types.ErrAccountNotOnChain):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, types.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
