package editor

import "github.com/easelhq/easel/internal/domain"

// HistoryCapacity bounds the undo stack. Overflow evicts the oldest
// entry, including the "Original" baseline once enough edits pile up;
// what "jump to entry 0" means shifts with it.
const HistoryCapacity = 20

type HistoryEntry struct {
	Options domain.EditOptions `json:"options"`
	Label   string             `json:"label"`
}

// History is the bounded undo/redo stack of immutable option
// snapshots. It is not safe for concurrent use; the owning session
// serializes access.
type History struct {
	entries []HistoryEntry
	index   int
}

func NewHistory(initial domain.EditOptions) *History {
	return &History{
		entries: []HistoryEntry{{Options: initial, Label: "Original"}},
	}
}

// Push discards the redo branch, appends the snapshot and evicts the
// oldest entries above capacity, re-basing the index.
func (h *History) Push(opts domain.EditOptions, label string) {
	h.entries = append(h.entries[:h.index+1], HistoryEntry{Options: opts, Label: label})
	if len(h.entries) > HistoryCapacity {
		overflow := len(h.entries) - HistoryCapacity
		copy(h.entries, h.entries[overflow:])
		h.entries = h.entries[:HistoryCapacity]
	}
	h.index = len(h.entries) - 1
}

// CommitIfChanged pushes only when the snapshot differs by value from
// the current entry, so settling a control without changing anything
// never spams the stack.
func (h *History) CommitIfChanged(opts domain.EditOptions, label string) bool {
	if opts == h.entries[h.index].Options {
		return false
	}
	h.Push(opts, label)
	return true
}

// Undo steps back one entry, reporting false at the boundary.
func (h *History) Undo() bool {
	if h.index == 0 {
		return false
	}
	h.index--
	return true
}

// Redo steps forward one entry, reporting false at the boundary.
func (h *History) Redo() bool {
	if h.index >= len(h.entries)-1 {
		return false
	}
	h.index++
	return true
}

// JumpTo moves the index directly, reporting false when out of bounds.
func (h *History) JumpTo(index int) bool {
	if index < 0 || index >= len(h.entries) {
		return false
	}
	h.index = index
	return true
}

// Reset replaces the whole stack with a single "Original" entry.
func (h *History) Reset(initial domain.EditOptions) {
	h.entries = []HistoryEntry{{Options: initial, Label: "Original"}}
	h.index = 0
}

func (h *History) Current() HistoryEntry {
	return h.entries[h.index]
}

func (h *History) Index() int {
	return h.index
}

func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stack for read-only presentation.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
