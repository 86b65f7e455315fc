package editor

import (
	"fmt"
	"testing"

	"github.com/easelhq/easel/internal/domain"
)

func TestHistoryEvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(domain.DefaultOptions())

	for i := 1; i <= 25; i++ {
		opts := domain.DefaultOptions()
		opts.TargetWidth = i
		h.Push(opts, fmt.Sprintf("Edit %d", i))
	}

	if h.Len() != HistoryCapacity {
		t.Fatalf("expected history capped at %d, got %d", HistoryCapacity, h.Len())
	}
	// Original plus 25 pushes is 26 entries; 6 evicted, so the oldest
	// survivor is the 6th pushed edit.
	oldest := h.Entries()[0]
	if oldest.Label != "Edit 6" {
		t.Fatalf("expected oldest surviving entry to be Edit 6, got %q", oldest.Label)
	}
	if h.Index() != h.Len()-1 {
		t.Fatalf("expected index at newest entry, got %d", h.Index())
	}
}

func TestHistoryUndoThenCommitDiscardsRedoBranch(t *testing.T) {
	h := NewHistory(domain.DefaultOptions())

	a := domain.DefaultOptions()
	a.TargetWidth = 100
	h.Push(a, "A")

	b := domain.DefaultOptions()
	b.TargetWidth = 200
	h.Push(b, "B")

	if !h.Undo() {
		t.Fatal("expected undo to step back")
	}

	c := domain.DefaultOptions()
	c.TargetWidth = 300
	if !h.CommitIfChanged(c, "C") {
		t.Fatal("expected commit of changed options")
	}

	if h.Len() != 3 {
		t.Fatalf("expected [Original, A, C], got %d entries", h.Len())
	}
	entries := h.Entries()
	if entries[0].Label != "Original" || entries[1].Label != "A" || entries[2].Label != "C" {
		t.Fatalf("unexpected history: %q %q %q", entries[0].Label, entries[1].Label, entries[2].Label)
	}
	if h.Current().Options != c {
		t.Fatal("expected current entry to be C")
	}
}

func TestHistoryUndoRedoClampAtBounds(t *testing.T) {
	h := NewHistory(domain.DefaultOptions())

	if h.Undo() {
		t.Fatal("expected undo at index 0 to be a no-op")
	}
	if h.Redo() {
		t.Fatal("expected redo at last entry to be a no-op")
	}

	a := domain.DefaultOptions()
	a.TargetWidth = 100
	h.Push(a, "A")

	if !h.Undo() || h.Index() != 0 {
		t.Fatalf("expected undo to land on 0, index=%d", h.Index())
	}
	if !h.Redo() || h.Index() != 1 {
		t.Fatalf("expected redo to land on 1, index=%d", h.Index())
	}
}

func TestHistoryCommitIfChangedSkipsNoops(t *testing.T) {
	initial := domain.DefaultOptions()
	h := NewHistory(initial)

	if h.CommitIfChanged(initial, "Noop") {
		t.Fatal("expected unchanged options to be skipped")
	}
	if h.Len() != 1 {
		t.Fatalf("expected history untouched, got %d entries", h.Len())
	}
}

func TestHistoryJumpToBoundsChecked(t *testing.T) {
	h := NewHistory(domain.DefaultOptions())
	a := domain.DefaultOptions()
	a.TargetWidth = 100
	h.Push(a, "A")

	if h.JumpTo(-1) || h.JumpTo(2) {
		t.Fatal("expected out-of-bounds jumps to be rejected")
	}
	if !h.JumpTo(0) || h.Index() != 0 {
		t.Fatal("expected jump to 0 to succeed")
	}
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(domain.DefaultOptions())
	a := domain.DefaultOptions()
	a.TargetWidth = 100
	h.Push(a, "A")

	initial := domain.DefaultOptions()
	h.Reset(initial)
	if h.Len() != 1 || h.Index() != 0 {
		t.Fatalf("expected single entry after reset, len=%d index=%d", h.Len(), h.Index())
	}
	if h.Current().Label != "Original" {
		t.Fatalf("expected Original label, got %q", h.Current().Label)
	}
}
