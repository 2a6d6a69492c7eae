package defs

import (
	"time"
)

var (
	// InputLogMaxMessageBytes defines the maximum length of one input line (one serialized entry)
	//
	// Longer lines are rejected by the reader and counted as invalid input
	InputLogMaxMessageBytes = 1 * 1024 * 1024

	// SinkMinBufferCapacity is the minimum accepted maxBufferSize of a sink
	//
	// Anything smaller would overflow before a useful batch could accumulate under normal load
	SinkMinBufferCapacity = 500

	// SinkDefaultBufferingInterval is how often buffered entries are flushed if no size trigger happens
	SinkDefaultBufferingInterval = 30 * time.Second

	// SinkDefaultBufferingCount is the number of buffered entries to trigger an immediate dispatch
	SinkDefaultBufferingCount = 1000

	// SinkDefaultMaxBufferSize is the default capacity of the batch buffer
	SinkDefaultMaxBufferSize = 30000

	// InputStopTimeout is how long to wait for input reading to stop after a termination signal
	//
	// Reading from stdin can block indefinitely, in which case the reader is abandoned
	InputStopTimeout = 10 * time.Second

	// InputBackpressureWait is the max wait for buffered entries to be dispatched before input reading checks again
	// for room in a full sink buffer
	InputBackpressureWait = 100 * time.Millisecond
)

var (
	// TransportRequestTimeout is the default timeout of one bulk HTTP request, including reading the response
	TransportRequestTimeout = 60 * time.Second

	// TransportDefaultMaxPayloadBytes is the default upper bound of uncompressed bulk request bodies
	//
	// Bigger payloads are split before sending
	TransportDefaultMaxPayloadBytes = 10 * 1024 * 1024

	// TransportResponseExcerptBytes is the max length of response body kept for diagnostics
	TransportResponseExcerptBytes = 4 * 1024

	// TransportResponseMaxBytes is the max length of response body to read for parsing bulk item results
	TransportResponseMaxBytes = 16 * 1024 * 1024

	// DiagnosticsPayloadExcerptBytes is the max length of payload excerpts attached to diagnostics events
	DiagnosticsPayloadExcerptBytes = 1024

	// DiagnosticsDefaultEventsPerSecond is the default rate limit of logging diagnostics events
	DiagnosticsDefaultEventsPerSecond = 10.0

	// DiagnosticsDefaultBurst is the default burst of logging diagnostics events
	DiagnosticsDefaultBurst = 20
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeout
func EnableTestMode() {
	TransportRequestTimeout = 2 * time.Second
	InputStopTimeout = 1 * time.Second
}
