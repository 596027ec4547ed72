// Copyright 2025 Certen Protocol

package rpc

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/types"
)

// BlockProducerHandlers serves the block-producer RPC surface:
// submitting client-proven transactions into the mempool.
type BlockProducerHandlers struct {
	mempool *mempool.Mempool
	log     *log.Logger
}

// NewBlockProducerHandlers returns handlers backed by mp.
func NewBlockProducerHandlers(mp *mempool.Mempool, logger *log.Logger) *BlockProducerHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[BlockProducerAPI] ", log.LstdFlags)
	}
	return &BlockProducerHandlers{mempool: mp, log: logger}
}

// submitProvenTransactionRequest mirrors types.ProvenTransaction with
// JSON-friendly field names; digests round-trip through Digest's own
// hex MarshalJSON/UnmarshalJSON.
type submitProvenTransactionRequest struct {
	ID              types.Digest      `json:"id"`
	AccountPrefix   uint64            `json:"account_prefix"`
	AccountFull     types.Digest      `json:"account_full"`
	InitState       types.Digest      `json:"init_state"`
	FinalState      types.Digest      `json:"final_state"`
	InputNotes      []inputNoteDTO    `json:"input_notes"`
	OutputNotes     []noteHeaderDTO   `json:"output_notes"`
	BlockRef        types.BlockNumber `json:"block_ref"`
	ExpirationBlock types.BlockNumber `json:"expiration_block"`
	Proof           []byte            `json:"proof"`
}

type inputNoteDTO struct {
	Nullifier types.Digest     `json:"nullifier"`
	Header    *noteHeaderDTO   `json:"header,omitempty"`
}

type noteHeaderDTO struct {
	ID            types.Digest `json:"id"`
	SenderPrefix  uint64       `json:"sender_prefix"`
	SenderFull    types.Digest `json:"sender_full"`
	Type          uint8        `json:"type"`
	Tag           uint32       `json:"tag"`
	ExecutionHint uint64       `json:"execution_hint"`
	Aux           uint64       `json:"aux"`
}

func (d noteHeaderDTO) toHeader() types.NoteHeader {
	return types.NoteHeader{
		ID:            d.ID,
		Sender:        types.AccountId{Prefix: d.SenderPrefix, Full: d.SenderFull},
		Type:          types.NoteType(d.Type),
		Tag:           d.Tag,
		ExecutionHint: d.ExecutionHint,
		Aux:           d.Aux,
	}
}

func (r submitProvenTransactionRequest) toTransaction() *types.ProvenTransaction {
	inputs := make([]types.InputNote, len(r.InputNotes))
	for i, in := range r.InputNotes {
		inputs[i] = types.InputNote{Nullifier: in.Nullifier}
		if in.Header != nil {
			h := in.Header.toHeader()
			inputs[i].Header = &h
		}
	}
	outputs := make([]types.NoteHeader, len(r.OutputNotes))
	for i, n := range r.OutputNotes {
		outputs[i] = n.toHeader()
	}
	return &types.ProvenTransaction{
		ID:              r.ID,
		AccountID:       types.AccountId{Prefix: r.AccountPrefix, Full: r.AccountFull},
		InitState:       r.InitState,
		FinalState:      r.FinalState,
		InputNotes:      inputs,
		OutputNotes:     outputs,
		BlockRef:        r.BlockRef,
		ExpirationBlock: r.ExpirationBlock,
		Proof:           r.Proof,
	}
}

type submitProvenTransactionResponse struct {
	BlockHeight types.BlockNumber `json:"block_height"`
}

// HandleSubmitProvenTransaction implements SubmitProvenTransaction:
// admits a proven transaction into the mempool and reports the block
// height it is targeting.
func (h *BlockProducerHandlers) HandleSubmitProvenTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitProvenTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "deserialization failed", http.StatusBadRequest)
		return
	}

	tx := req.toTransaction()
	if err := h.mempool.AddTransaction(tx); err != nil {
		status, msg := admissionStatus(err)
		h.log.Printf("[%s] tx %s rejected: %v", requestID(r.Context()), tx.ID, err)
		writeJSONError(w, msg, status)
		return
	}

	writeJSON(w, submitProvenTransactionResponse{BlockHeight: h.mempool.ChainTip() + 1})
}
