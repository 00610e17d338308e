package whiteboard

// HistoryCapacity bounds the number of snapshots kept for undo.
const HistoryCapacity = 20

// History is a bounded list of surface snapshots with an undo cursor.
// entries[:cursor] are undoable states; entries[cursor+1:] are redoable.
type History struct {
	entries  []Snapshot
	cursor   int
	capacity int
}

// NewHistory returns a history holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{capacity: capacity}
}

// Checkpoint records s as the state before a new action. Any redoable
// states are discarded.
func (h *History) Checkpoint(s Snapshot) {
	h.entries = append(h.entries[:h.cursor], s)
	h.cursor = len(h.entries)
	h.trim()
}

// Undo returns the state preceding live, or false when there is none.
func (h *History) Undo(live Snapshot) (Snapshot, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	if h.cursor == len(h.entries) {
		h.entries = append(h.entries, live)
		h.trim()
		if h.cursor == 0 {
			return nil, false
		}
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo returns the state following the cursor, or false when there is none.
func (h *History) Redo() (Snapshot, bool) {
	if h.cursor+1 >= len(h.entries) {
		return nil, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// CanUndo reports whether Undo would succeed.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether Redo would succeed.
func (h *History) CanRedo() bool { return h.cursor+1 < len(h.entries) }

// Len returns the number of stored snapshots.
func (h *History) Len() int { return len(h.entries) }

// Reset drops every snapshot.
func (h *History) Reset() {
	h.entries = nil
	h.cursor = 0
}

func (h *History) trim() {
	for len(h.entries) > h.capacity {
		h.entries[0] = nil
		h.entries = h.entries[1:]
		if h.cursor > 0 {
			h.cursor--
		}
	}
}
