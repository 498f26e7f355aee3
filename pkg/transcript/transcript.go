// Package transcript defines the append-only conversation record shared by
// the session loop, the model adapters, and the tool resolver. Entries are
// never reordered or removed after append; corrections are expressed by
// appending new entries.
package transcript

import (
	"fmt"
	"iter"
	"strings"
)

// Transcript is an ordered, append-only sequence of entries. It is owned by a
// single writer (the session that appends to it); everything else must treat
// it as read-only. There is no internal locking for that reason.
type Transcript struct {
	entries []Entry
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds entries at the end, preserving the order given.
func (t *Transcript) Append(entries ...Entry) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		t.entries = append(t.entries, e)
	}
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// At returns the entry at index i.
func (t *Transcript) At(i int) Entry {
	return t.entries[i]
}

// Entries returns a copy of the entry slice.
func (t *Transcript) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// All iterates the entries in append order.
func (t *Transcript) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range t.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Clear drops every entry. Only the owning session may call this.
func (t *Transcript) Clear() {
	t.entries = nil
}

// Splice replaces the half-open range [start, end) with the given entries.
// It exists for scripted and test adapters that need to swap in canned
// content; live sessions only ever append.
func (t *Transcript) Splice(start, end int, entries ...Entry) error {
	if start < 0 || end < start || end > len(t.entries) {
		return fmt.Errorf("transcript: splice range [%d, %d) out of bounds for %d entries", start, end, len(t.entries))
	}
	replaced := make([]Entry, 0, len(t.entries)-(end-start)+len(entries))
	replaced = append(replaced, t.entries[:start]...)
	replaced = append(replaced, entries...)
	replaced = append(replaced, t.entries[end:]...)
	t.entries = replaced
	return nil
}

// OutputForCall scans for the tool output correlated to callID. A linear scan
// is fine here: one resolution pass covers a single turn's calls, which is
// tens of entries at most.
func (t *Transcript) OutputForCall(callID string) (*ToolOutput, bool) {
	for _, e := range t.entries {
		if out, ok := e.(*ToolOutput); ok && out.CallID == callID {
			return out, true
		}
	}
	return nil, false
}

// PendingCalls returns, in order, every tool call that has no correlated
// output yet.
func (t *Transcript) PendingCalls() []ToolCall {
	var pending []ToolCall
	for _, e := range t.entries {
		calls, ok := e.(*ToolCalls)
		if !ok {
			continue
		}
		for _, call := range calls.Calls {
			if _, done := t.OutputForCall(call.CallID); !done {
				pending = append(pending, call)
			}
		}
	}
	return pending
}

// ResponseText joins the text segments of every response entry with newlines.
func (t *Transcript) ResponseText() string {
	return JoinText(t.entries)
}

// JoinText newline-joins the text segments of the response entries in the
// given slice.
func JoinText(entries []Entry) string {
	var parts []string
	for _, e := range entries {
		resp, ok := e.(*Response)
		if !ok {
			continue
		}
		for _, seg := range resp.Segments {
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
