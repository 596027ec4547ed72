// Copyright 2025 Certen Protocol
//
// Core identifier and digest types shared by the mempool, the block
// pipeline and the store. A Digest is the 256-bit commitment value used
// throughout the node: account states, nullifiers, note ids and block
// hashes are all digests distinguished only by the role they play.

package types

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// Digest is a 256-bit commitment value, backed by the same four-limb
// representation gnark-crypto/Miden's "Word" and go-ethereum's uint256
// already agree on. The zero digest denotes "empty" wherever the spec
// calls for it (a fresh account, an unset nullifier).
type Digest uint256.Int

// ZeroDigest is the canonical empty/new digest.
var ZeroDigest = Digest{}

// DigestFromBytes decodes a big-endian 32-byte digest.
func DigestFromBytes(b []byte) (Digest, error) {
	if len(b) != 32 {
		return Digest{}, fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	var u uint256.Int
	u.SetBytes(b)
	return Digest(u), nil
}

// Bytes returns the big-endian 32-byte encoding of d.
func (d Digest) Bytes() []byte {
	u := uint256.Int(d)
	b := u.Bytes32()
	return b[:]
}

// Word returns the digest as four little-endian u64 field-element-shaped
// limbs, the representation nullifier-tree values and account states
// are expressed in elsewhere ("[block_num, 0, 0, 0]").
func (d Digest) Word() [4]uint64 {
	u := uint256.Int(d)
	return [4]uint64{u[0], u[1], u[2], u[3]}
}

// WordFromUint64s builds a digest from four limbs, least-significant first.
func WordFromUint64s(w [4]uint64) Digest {
	return Digest(uint256.Int{w[0], w[1], w[2], w[3]})
}

// IsZero reports whether d is the empty/new digest.
func (d Digest) IsZero() bool {
	u := uint256.Int(d)
	return u.IsZero()
}

// Cmp orders digests as big-endian byte strings; used for the
// deterministic tie-breaking select_batch/select_block require.
func (d Digest) Cmp(other Digest) int {
	u, o := uint256.Int(d), uint256.Int(other)
	return u.Cmp(&o)
}

func (d Digest) String() string {
	return "0x" + hex.EncodeToString(d.Bytes())
}

// MarshalJSON renders a digest as a hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// MarshalText renders a digest as a hex string, letting Digest serve as
// a JSON object key (encoding/json only consults TextMarshaler, not
// MarshalJSON, when a map key is encoded).
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a hex-string digest without the surrounding JSON
// quotes UnmarshalJSON expects.
func (d *Digest) UnmarshalText(b []byte) error {
	return d.UnmarshalJSON([]byte(`"` + string(b) + `"`))
}

// UnmarshalJSON parses a hex-string digest.
func (d *Digest) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid digest json: %s", s)
	}
	s = s[1 : len(s)-1]
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid digest hex: %w", err)
	}
	padded := make([]byte, 32)
	copy(padded[32-len(raw):], raw)
	v, err := DigestFromBytes(padded)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// AccountId is an opaque account identifier; Prefix is the 64-bit value
// used as the account SMT key.
type AccountId struct {
	Prefix uint64
	Full   Digest
}

func (a AccountId) String() string {
	return fmt.Sprintf("0x%016x", a.Prefix)
}

// Nullifier is the 256-bit digest derived from a consumed note. Nullifier
// uniqueness across all time is enforced by the store's nullifier SMT.
type Nullifier = Digest

// NoteId is the 256-bit note commitment.
type NoteId = Digest

// NoteType distinguishes how a note's assets/targets must be resolved.
type NoteType uint8

const (
	NoteTypePublic NoteType = iota
	NoteTypePrivate
	NoteTypeEncrypted
)

// NoteHeader carries a note's commitment plus the metadata needed for
// tag-based discovery and execution hinting, without its full payload.
type NoteHeader struct {
	ID             NoteId
	Sender         AccountId
	Type           NoteType
	Tag            uint32
	ExecutionHint  uint64
	Aux            uint64
}

// InputNote is a transaction's reference to a note it consumes: the
// nullifier it produces, plus the header if the transaction also knows
// it (needed to authenticate notes that aren't yet in the store).
type InputNote struct {
	Nullifier Nullifier
	Header    *NoteHeader // nil when the transaction only knows the nullifier
}

// BlockNumber identifies a block; genesis is 0 and numbering is
// contiguous (invariant 1).
type BlockNumber uint32
