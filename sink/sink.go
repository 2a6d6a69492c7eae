package sink

import (
	"fmt"
	"sync"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/buffer/batchbuffer"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/output/elasticbulk"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// Sink buffers entries from producers and ships them in batches to a bulk-ingest endpoint
//
// Enqueue never blocks. A single background coordinator drains and sends batches, one at a time, triggered by
// interval timer, buffered count, Flush or Close. Failed batches are reported to the diagnostics emitter and discarded.
type Sink struct {
	logger       logger.Logger
	config       Config
	buffer       *batchbuffer.BatchBuffer
	packer       *elasticbulk.PayloadPacker
	transport    base.BulkTransport
	diagnostics  base.DiagnosticsEmitter
	flushSignal  chan struct{}
	closeRequest *channels.SignalAwaitable
	stopped      *channels.SignalAwaitable
	startOnce    sync.Once
	closeOnce    sync.Once
	closeErr     error
	metrics      sinkMetrics
}

// NewSink verifies the config and creates a Sink posting to the configured endpoint
//
// Configuration errors wrap base.ErrMissingConfiguration, base.ErrMalformedEndpoint, base.ErrInvalidIdentifier or
// base.ErrInvalidConfiguration. The sink needs to be started by Start.
func NewSink(parentLogger logger.Logger, config Config, diagnostics base.DiagnosticsEmitter, metricCreator promreg.MetricCreator) (*Sink, error) {
	if err := config.VerifyConfig(); err != nil {
		return nil, err
	}
	sinkLogger := parentLogger.WithField(defs.LabelComponent, "BulkSink")
	transport, err := elasticbulk.NewHTTPTransport(sinkLogger, config.Upstream, metricCreator)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	return newSink(sinkLogger, config, transport, diagnostics, metricCreator)
}

// NewSinkWithTransport verifies the config and creates a Sink sending through the given transport
//
// Upstream settings other than the payload size limit are ignored, but still verified.
func NewSinkWithTransport(parentLogger logger.Logger, config Config, transport base.BulkTransport, diagnostics base.DiagnosticsEmitter,
	metricCreator promreg.MetricCreator) (*Sink, error) {
	if err := config.VerifyConfig(); err != nil {
		return nil, err
	}
	return newSink(parentLogger.WithField(defs.LabelComponent, "BulkSink"), config, transport, diagnostics, metricCreator)
}

func newSink(sinkLogger logger.Logger, config Config, transport base.BulkTransport, diagnostics base.DiagnosticsEmitter,
	metricCreator promreg.MetricCreator) (*Sink, error) {
	serializer, err := elasticbulk.NewEventSerializer(sinkLogger, config.Serialization)
	if err != nil {
		return nil, fmt.Errorf("serialization%w", err)
	}
	sinkMetricCreator := metricCreator.AddOrGetPrefix("sink_", nil, nil)
	return &Sink{
		logger:       sinkLogger,
		config:       config,
		buffer:       batchbuffer.NewBatchBuffer(sinkLogger, config.MaxBufferSize, config.BufferingCount, sinkMetricCreator),
		packer:       elasticbulk.NewPayloadPacker(serializer, int(config.Upstream.MaxPayloadSize.Bytes())),
		transport:    transport,
		diagnostics:  diagnostics,
		flushSignal:  make(chan struct{}, 1),
		closeRequest: channels.NewSignalAwaitable(),
		stopped:      channels.NewSignalAwaitable(),
		startOnce:    sync.Once{},
		closeOnce:    sync.Once{},
		closeErr:     nil,
		metrics:      newSinkMetrics(sinkMetricCreator),
	}, nil
}

// Start launches the background coordinator. Calling it more than once has no effect.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stopped returns an Awaitable completed when the coordinator has exited after Close
func (s *Sink) Stopped() channels.Awaitable {
	return s.stopped
}

// Enqueue adds an entry to the buffer without blocking
//
// Returns false if the entry is dropped because the buffer is full or the sink is closing. Drops are counted and
// reported in aggregate, never individually.
func (s *Sink) Enqueue(entry *base.StructuredEntry) bool {
	if entry == nil {
		return false
	}
	return s.buffer.Enqueue(entry)
}

// Flush requests all entries enqueued before this call to be dispatched
//
// The returned Awaitable is completed once all of them have been sent or reported as failed. Entries enqueued later
// are not waited for. It doesn't change the state of the sink.
func (s *Sink) Flush() channels.Awaitable {
	waiter := s.buffer.NewFlushWaiter()
	select {
	case s.flushSignal <- struct{}{}:
	default:
	}
	return waiter
}

// Close stops accepting entries, dispatches all buffered entries and waits for completion up to OnCompletedTimeout
//
// On timeout, remaining entries are discarded and counted as dropped, and the returned error wraps
// base.ErrNotFlushed. Later calls return the result of the first call.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Sink) close() error {
	s.Start()
	s.buffer.BeginClosing()
	s.logger.Infof("closing with %d buffered entries", s.buffer.Len())
	s.closeRequest.Signal()

	timeout := s.config.OnCompletedTimeout
	completed := true
	if timeout != nil {
		completed = s.stopped.Wait(*timeout)
	} else {
		s.stopped.WaitForever()
	}

	discarded := s.buffer.Close()
	if !completed {
		s.logger.Warnf("closing timed out after %s, %d entries discarded", *timeout, discarded)
		return fmt.Errorf("%w: timed out after %s, %d entries discarded", base.ErrNotFlushed, *timeout, discarded)
	}
	s.logger.Infof("closed, total dropped entries: %d", s.buffer.Dropped())
	return nil
}

// DroppedCount returns the total count of entries dropped by overflow, closing or shutdown timeout
func (s *Sink) DroppedCount() int64 {
	return s.buffer.Dropped()
}

// Stats returns a snapshot of the buffer state
func (s *Sink) Stats() batchbuffer.Stats {
	return s.buffer.Stats()
}
