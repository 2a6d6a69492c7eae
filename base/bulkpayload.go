package base

import (
	"bytes"
	"fmt"
)

// BulkPayload represents a batch of entries serialized into the bulk wire format and ready for transport
type BulkPayload struct {
	ID         string // Unique ID of this payload, may be used as filename
	Data       []byte // Newline-delimited action/document pairs, uncompressed
	NumEntries int    // Numbers of entries serialized inside
}

func (payload BulkPayload) String() string {
	return fmt.Sprintf("id=%s len=%d entries=%d", payload.ID, len(payload.Data), payload.NumEntries)
}

// Excerpt returns the leading part of payload data for diagnostics, cut at maxLength bytes
func (payload BulkPayload) Excerpt(maxLength int) string {
	if len(payload.Data) <= maxLength {
		return string(payload.Data)
	}
	return string(payload.Data[:maxLength]) + "..."
}

// SelectEntries returns a payload with the same ID made of only the action/document line pairs at the given entry
// positions, in the given order
//
// Positions out of range are ignored.
func (payload BulkPayload) SelectEntries(positions []int) BulkPayload {
	lines := bytes.SplitAfter(payload.Data, []byte{'\n'})
	numPairs := len(lines) / 2
	selected := BulkPayload{ID: payload.ID, Data: make([]byte, 0, len(payload.Data)), NumEntries: 0}
	for _, pos := range positions {
		if pos < 0 || pos >= numPairs {
			continue
		}
		selected.Data = append(selected.Data, lines[2*pos]...)
		selected.Data = append(selected.Data, lines[2*pos+1]...)
		selected.NumEntries++
	}
	return selected
}
