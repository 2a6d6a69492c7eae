package batchbuffer

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a sink's buffer: Open -> Closing -> Closed
type State int32

// Buffer states
const (
	StateOpen    State = iota // accepting entries
	StateClosing              // final drain in progress, new entries rejected
	StateClosed               // nothing accepted, leftovers discarded
)

func (state State) String() string {
	switch state {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(state))
	}
}

// Stats is a snapshot of buffer state
type Stats struct {
	State     State
	Buffered  int       // currently queued entries
	Capacity  int       // max queued entries
	Enqueued  uint64    // total accepted entries
	Settled   uint64    // total accepted entries either sent or discarded
	Dropped   int64     // total rejected or discarded entries
	LastFlush time.Time // time of the last drain, zero if none yet
}

// DropReason tells why an entry was dropped
type DropReason string

// Reasons of dropping
const (
	DropOverflow DropReason = "overflow" // buffer full at enqueue
	DropClosed   DropReason = "closed"   // enqueue after closing started
	DropShutdown DropReason = "shutdown" // still buffered when close timed out
)
