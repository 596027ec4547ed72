// Copyright 2025 Certen Protocol
//
// The error taxonomy is closed: every error the mempool, block pipeline
// and store can surface is one of the sentinels below, wrapped with
// fmt.Errorf("...: %w", ...) for context as it propagates. Callers
// should compare with errors.Is / errors.As, never string-match.

package types

import "errors"

// Admission errors: client-visible, non-fatal. Returned to the RPC
// caller and logged at debug level.
var (
	ErrStaleInputs               = errors.New("stale inputs")
	ErrExpired                   = errors.New("transaction expired")
	ErrInvalidAccountState       = errors.New("invalid account state")
	ErrNotesAlreadyConsumed      = errors.New("notes already consumed")
	ErrDuplicateOutputNotes      = errors.New("duplicate output notes")
	ErrUnauthenticatedNotesNotFound = errors.New("unauthenticated notes not found")
	ErrDeserializationFailed     = errors.New("deserialization failed")
	ErrInvalidTransactionProof   = errors.New("invalid transaction proof")
)

// Witness assembly errors: propagate up and abort the current
// batch/block attempt, but are not fatal to the node.
var (
	ErrInconsistentAccountIds     = errors.New("inconsistent account ids")
	ErrInconsistentAccountStates  = errors.New("inconsistent account states")
	ErrInconsistentNullifiers     = errors.New("inconsistent nullifiers")
	ErrTooManyBatchesInBlock      = errors.New("too many batches in block")
	ErrInvalidMerklePaths         = errors.New("invalid merkle paths")
)

// Prover errors.
var (
	ErrProgramExecutionFailed = errors.New("program execution failed")
)

// InvalidRootOutputKind names which root a prover output failed to match.
type InvalidRootOutputKind string

const (
	RootKindAccount   InvalidRootOutputKind = "account_root"
	RootKindNullifier InvalidRootOutputKind = "nullifier_root"
	RootKindNote      InvalidRootOutputKind = "note_root"
	RootKindChain     InvalidRootOutputKind = "chain_root"
)

// InvalidRootOutputError reports a prover-computed root mismatch.
type InvalidRootOutputError struct {
	Kind InvalidRootOutputKind
}

func (e *InvalidRootOutputError) Error() string {
	return "invalid root output: " + string(e.Kind)
}

// Store errors: a persistent store error is fatal.
var (
	ErrBlockNotFoundInDb         = errors.New("block not found in db")
	ErrAccountNotOnChain         = errors.New("account not on chain")
	ErrAccountHashesMismatch     = errors.New("account hashes mismatch")
	ErrDataCorrupted             = errors.New("data corrupted")
	ErrUnsupportedDatabaseVersion = errors.New("unsupported database version")
	ErrMigrationError            = errors.New("migration error")

	// ErrBatchNotFound / ErrTransactionNotFound are repository-level
	// "F.4 remediation" sentinels: a missing row is always a named
	// error, never a silent (nil, nil).
	ErrBatchNotFound       = errors.New("batch not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountNotFound     = errors.New("account not found")
)

// InvalidAccountStateError carries the current/expected states so the
// RPC layer can surface them verbatim.
type InvalidAccountStateError struct {
	Current  Digest
	Expected Digest
}

func (e *InvalidAccountStateError) Error() string {
	return "invalid account state: current=" + e.Current.String() + " expected=" + e.Expected.String()
}

func (e *InvalidAccountStateError) Unwrap() error { return ErrInvalidAccountState }

// NotesAlreadyConsumedError carries the offending nullifiers.
type NotesAlreadyConsumedError struct {
	Nullifiers []Nullifier
}

func (e *NotesAlreadyConsumedError) Error() string {
	return "notes already consumed"
}

func (e *NotesAlreadyConsumedError) Unwrap() error { return ErrNotesAlreadyConsumed }

// DuplicateOutputNotesError carries the offending note ids.
type DuplicateOutputNotesError struct {
	NoteIDs []NoteId
}

func (e *DuplicateOutputNotesError) Error() string {
	return "duplicate output notes"
}

func (e *DuplicateOutputNotesError) Unwrap() error { return ErrDuplicateOutputNotes }

// UnauthenticatedNotesNotFoundError carries the note ids that could not
// be resolved against either the store or an inflight producer.
type UnauthenticatedNotesNotFoundError struct {
	NoteIDs []NoteId
}

func (e *UnauthenticatedNotesNotFoundError) Error() string {
	return "unauthenticated notes not found"
}

func (e *UnauthenticatedNotesNotFoundError) Unwrap() error {
	return ErrUnauthenticatedNotesNotFound
}

// InconsistentAccountIdsError carries the symmetric difference between
// the accounts batches claim to touch and what the store returned
// witnesses for.
type InconsistentAccountIdsError struct {
	Difference []AccountId
}

func (e *InconsistentAccountIdsError) Error() string {
	return "inconsistent account ids"
}

func (e *InconsistentAccountIdsError) Unwrap() error { return ErrInconsistentAccountIds }

// InconsistentAccountStatesError carries the accounts whose
// store-returned current hash didn't match the batches' claimed initial
// hash.
type InconsistentAccountStatesError struct {
	Offenders []AccountId
}

func (e *InconsistentAccountStatesError) Error() string {
	return "inconsistent account states"
}

func (e *InconsistentAccountStatesError) Unwrap() error { return ErrInconsistentAccountStates }
