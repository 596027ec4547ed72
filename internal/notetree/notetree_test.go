// Copyright 2025 Certen Protocol

package notetree

import (
	"testing"

	"github.com/rollupnode/node/internal/types"
)

func note(b byte) types.NoteHeader {
	buf := make([]byte, 32)
	buf[31] = b
	id, err := types.DigestFromBytes(buf)
	if err != nil {
		panic(err)
	}
	return types.NoteHeader{ID: id}
}

func TestEmptyBatchSubtreeMatchesEmptyConstant(t *testing.T) {
	root, err := BuildBatchSubtree(nil)
	if err != nil {
		t.Fatal(err)
	}
	if root != EmptyBatchSubtreeRoot() {
		t.Fatalf("an empty batch's subtree root must equal the empty-subtree constant")
	}
}

func TestBuildBatchSubtreeDeterministic(t *testing.T) {
	notes := []types.NoteHeader{note(1), note(2), note(3)}
	a, err := BuildBatchSubtree(notes)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildBatchSubtree(notes)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("building the same batch twice must yield the same root")
	}
}

func TestBuildBatchSubtreeOrderSensitive(t *testing.T) {
	a, _ := BuildBatchSubtree([]types.NoteHeader{note(1), note(2)})
	b, _ := BuildBatchSubtree([]types.NoteHeader{note(2), note(1)})
	if a == b {
		t.Fatalf("note order within a batch must affect the subtree root")
	}
}

func TestBuildBatchSubtreeRejectsOverflow(t *testing.T) {
	notes := make([]types.NoteHeader, MaxNotesPerBatch+1)
	for i := range notes {
		notes[i] = note(byte(i % 251))
	}
	if _, err := BuildBatchSubtree(notes); err == nil {
		t.Fatalf("expected an error when a batch exceeds MaxNotesPerBatch")
	}
}

func TestBuildBlockNoteTreeRejectsOverflow(t *testing.T) {
	batches := make([]types.BatchNotes, MaxBatchesPerBlock+1)
	if _, err := BuildBlockNoteTree(batches); err == nil {
		t.Fatalf("expected an error when a block exceeds MaxBatchesPerBlock")
	}
}

func TestOpenVerifyRoundTrip(t *testing.T) {
	batches := []types.BatchNotes{
		{Notes: []types.NoteHeader{note(1), note(2), note(3)}},
		{Notes: []types.NoteHeader{note(4), note(5)}},
	}
	root, err := BuildBlockNoteTree(batches)
	if err != nil {
		t.Fatal(err)
	}

	proof, err := OpenNote(batches, 1, 1) // note(5)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyNote(note(5).ID, proof, root) {
		t.Fatalf("VerifyNote failed for a note actually in the tree")
	}
	if VerifyNote(note(4).ID, proof, root) {
		t.Fatalf("VerifyNote must reject a note id that doesn't match the proof's position")
	}
}

func TestEmptyBlockNoteTreeIsStable(t *testing.T) {
	a, err := BuildBlockNoteTree(nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildBlockNoteTree(nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("an empty block's note root must be deterministic")
	}
}
