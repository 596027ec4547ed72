// Copyright 2025 Certen Protocol

package mmr

import (
	"testing"

	"github.com/rollupnode/node/internal/types"
)

func leaf(b byte) types.Digest {
	buf := make([]byte, 32)
	buf[31] = b
	d, err := types.DigestFromBytes(buf)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAppendSinglePeak(t *testing.T) {
	m := New()
	m.Append(leaf(1))
	peaks := m.Peaks()
	if len(peaks) != 1 {
		t.Fatalf("one leaf must yield exactly one peak, got %d", len(peaks))
	}
	if peaks[0] != leaf(1) {
		t.Fatalf("single-leaf peak must equal the leaf itself")
	}
}

func TestAppendMergesPowerOfTwo(t *testing.T) {
	m := New()
	m.Append(leaf(1))
	m.Append(leaf(2))
	peaks := m.Peaks()
	if len(peaks) != 1 {
		t.Fatalf("two leaves must merge into one peak, got %d peaks", len(peaks))
	}
}

func TestPeakCountMatchesPopcount(t *testing.T) {
	m := New()
	for i := byte(1); i <= 13; i++ {
		m.Append(leaf(i))
		want := popcount(uint64(i))
		if got := len(m.Peaks()); got != want {
			t.Fatalf("after %d leaves: %d peaks, want %d (popcount)", i, got, want)
		}
	}
}

func popcount(n uint64) int {
	c := 0
	for n != 0 {
		c += int(n & 1)
		n >>= 1
	}
	return c
}

func TestNextChainRootDeterministic(t *testing.T) {
	m1 := New()
	m2 := New()
	for _, b := range []byte{1, 2, 3, 4, 5} {
		m1.Append(leaf(b))
		m2.Append(leaf(b))
	}
	prev := leaf(99)
	if m1.NextChainRoot(prev) != m2.NextChainRoot(prev) {
		t.Fatalf("identical MMR state must produce identical chain roots")
	}
}

func TestNextChainRootChangesWithPrevHash(t *testing.T) {
	m := New()
	m.Append(leaf(1))
	a := m.NextChainRoot(leaf(10))
	b := m.NextChainRoot(leaf(11))
	if a == b {
		t.Fatalf("chain root must depend on the previous block hash")
	}
}

func TestBagPeaksEmpty(t *testing.T) {
	if got := BagPeaks(nil); got != types.ZeroDigest {
		t.Fatalf("bagging no peaks must yield the zero digest, got %v", got)
	}
}
