package base

import (
	"fmt"
)

// BulkTransport sends serialized payloads to the remote bulk-ingest endpoint
//
// Send is never called concurrently for the same transport by one sink, but the same transport may be shared
// with e.g. a dead-letter resender running after the sink is closed.
type BulkTransport interface {
	// Send posts the given payload and returns the interpreted outcome; it never panics on remote failures
	Send(payload BulkPayload) SendOutcome
}

// OutcomeKind classifies the result of one send attempt
type OutcomeKind int

// Outcome kinds of send attempts
const (
	OutcomeSuccess          OutcomeKind = iota // 2xx and all items accepted
	OutcomePartialFailure                      // 2xx but some items rejected by remote
	OutcomeClientError                         // 4xx, the payload was rejected as a whole
	OutcomeTransportFailure                    // network error, timeout or 5xx
)

func (kind OutcomeKind) String() string {
	switch kind {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partialFailure"
	case OutcomeClientError:
		return "clientError"
	case OutcomeTransportFailure:
		return "transportFailure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(kind))
	}
}

// SendOutcome is the structured result of BulkTransport.Send
type SendOutcome struct {
	Kind          OutcomeKind
	StatusCode    int    // HTTP status code, 0 if no response
	Detail        string // remote error detail or local error message, may be truncated
	FailedEntries int    // numbers of entries not accepted by remote
	FailedItems   []int  // 0-based positions of rejected entries for OutcomePartialFailure, nil if unknown
	Err           error  // underlying error for OutcomeTransportFailure, nil otherwise
}

// Delivered returns true if the payload was accepted as a whole
func (outcome SendOutcome) Delivered() bool {
	return outcome.Kind == OutcomeSuccess
}

func (outcome SendOutcome) String() string {
	if outcome.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", outcome.Kind, outcome.Detail)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", outcome.Kind, outcome.StatusCode, outcome.Detail)
}
