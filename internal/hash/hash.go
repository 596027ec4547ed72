// Copyright 2025 Certen Protocol
//
// H is the collision-resistant hash used everywhere the spec calls for
// one: SMT internal nodes, the note tree, and BatchId = H(tx_ids). The
// spec assumes an RPO/Poseidon-style arithmetization-friendly hash at
// the cryptography layer (out of scope here); MiMC from gnark-crypto is
// the same class of primitive and is what ties this node's off-circuit
// hashing to a real SNARK-friendly hash family rather than a stand-in
// like sha256.

package hash

import (
	stdhash "hash"

	"github.com/consensys/gnark-crypto/ecc"
	gnarkhash "github.com/consensys/gnark-crypto/hash"

	"github.com/rollupnode/node/internal/types"
)

// newMiMC returns a fresh MiMC state over the BN254 scalar field.
func newMiMC() stdhash.Hash {
	return gnarkhash.MIMC_BN254.New()
}

// Digest hashes an arbitrary byte string to a types.Digest.
func Digest(data []byte) types.Digest {
	h := newMiMC()
	h.Write(data)
	sum := h.Sum(nil)
	d, err := types.DigestFromBytes(leftPad32(sum))
	if err != nil {
		// MiMC over BN254 never emits more than 32 bytes; a mismatch
		// here means the hash backend changed shape.
		panic(err)
	}
	return d
}

// Merge hashes two digests together (the SMT/note-tree internal-node
// hash H(left || right)).
func Merge(left, right types.Digest) types.Digest {
	buf := make([]byte, 0, 64)
	buf = append(buf, left.Bytes()...)
	buf = append(buf, right.Bytes()...)
	return Digest(buf)
}

// MergeMany hashes an ordered sequence of digests together, used for
// BatchId = H(concat(tx_ids)).
func MergeMany(digests []types.Digest) types.Digest {
	buf := make([]byte, 0, 32*len(digests))
	for _, d := range digests {
		buf = append(buf, d.Bytes()...)
	}
	return Digest(buf)
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// CurveID reports the scalar field this hash is defined over, exposed
// for components (e.g. the note tree) that need to confirm compatibility
// with a prover's native field.
const CurveID = ecc.BN254
