// Copyright 2025 Certen Protocol

package types

// ProvenTransaction is a client-proven state transition for a single
// account. Proof validity is assumed pre-verified by the time it reaches
// the mempool — the zero-knowledge verifier itself is out of scope.
type ProvenTransaction struct {
	ID             Digest
	AccountID      AccountId
	InitState      Digest
	FinalState     Digest
	InputNotes     []InputNote
	OutputNotes    []NoteHeader
	BlockRef       BlockNumber
	ExpirationBlock BlockNumber
	Proof          []byte
}

// Nullifiers returns the nullifiers this transaction consumes, in
// declaration order.
func (tx *ProvenTransaction) Nullifiers() []Nullifier {
	out := make([]Nullifier, len(tx.InputNotes))
	for i, n := range tx.InputNotes {
		out[i] = n.Nullifier
	}
	return out
}

// UnauthenticatedInputs returns the input notes the transaction also
// carries a header for — candidates for note-producer parent edges
// during admission.
func (tx *ProvenTransaction) UnauthenticatedInputs() []NoteHeader {
	var out []NoteHeader
	for _, n := range tx.InputNotes {
		if n.Header != nil {
			out = append(out, *n.Header)
		}
	}
	return out
}

// TxStatus is a transaction's lifecycle state within the mempool.
type TxStatus int

const (
	TxInQueue TxStatus = iota
	TxBatched
	TxProven
	TxBlocked
	TxCommitted
)

func (s TxStatus) String() string {
	switch s {
	case TxInQueue:
		return "InQueue"
	case TxBatched:
		return "Batched"
	case TxProven:
		return "Proven"
	case TxBlocked:
		return "Blocked"
	case TxCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// BatchStatus is a batch's lifecycle state within the mempool.
type BatchStatus int

const (
	BatchInflight BatchStatus = iota
	BatchProven
	BatchBlocked
	BatchCommitted
	BatchFailed
)

func (s BatchStatus) String() string {
	switch s {
	case BatchInflight:
		return "Inflight"
	case BatchProven:
		return "Proven"
	case BatchBlocked:
		return "Blocked"
	case BatchCommitted:
		return "Committed"
	case BatchFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// BatchID identifies a batch; it is the collision-resistant hash of its
// member transaction ids, not a random identifier.
type BatchID = Digest

// AccountUpdate is a single account's state transition as claimed by a
// batch (the fold of its member transactions' deltas).
type AccountUpdate struct {
	AccountID  AccountId
	InitState  Digest
	FinalState Digest
}

// Batch is an ordered collection of transactions forming a tree of
// output notes (depth 13).
type Batch struct {
	ID            BatchID
	Transactions  []*ProvenTransaction
	AccountUpdates []AccountUpdate
	InputNotes    []Nullifier
	OutputNotes   []NoteHeader
	Proof         []byte
}
