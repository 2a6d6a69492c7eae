package base

import (
	"time"
)

// DiagnosticKind classifies diagnostics events
type DiagnosticKind string

// Kinds of diagnostics events emitted by the dispatcher
const (
	DiagnosticSerializationFailed DiagnosticKind = "serializationFailed"
	DiagnosticClientError         DiagnosticKind = "clientError"
	DiagnosticTransportFailure    DiagnosticKind = "transportFailure"
	DiagnosticItemsRejected       DiagnosticKind = "itemsRejected"
	DiagnosticDispatchPanic       DiagnosticKind = "dispatchPanic"
	DiagnosticEntriesDropped      DiagnosticKind = "entriesDropped"
)

// DiagnosticEvent describes one failure or drop reported by the dispatcher
type DiagnosticEvent struct {
	Kind       DiagnosticKind
	Time       time.Time
	Message    string
	Excerpt    string       // leading part of the offending payload, empty if not applicable
	NumEntries int          // numbers of affected entries
	Payload    *BulkPayload // the full failed payload if available, must not be modified
}

// DiagnosticsEmitter is a write-only sink for diagnostics events
//
// Emit is called from the dispatcher goroutine and must not block for long. Implementations must not panic.
type DiagnosticsEmitter interface {
	Emit(event DiagnosticEvent)
}
