package sink

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/buffer/batchbuffer"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/diagnostics"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	defs.EnableTestMode()
	m.Run()
}

func TestSinkConfigErrors(t *testing.T) {
	baseline := newTestConfig("http://localhost:9200")
	require.NoError(t, baseline.VerifyConfig())
	require.LessOrEqual(t, baseline.BufferingCount, baseline.MaxBufferSize)

	check := func(expected error, modify func(cfg *Config)) {
		cfg := newTestConfig("http://localhost:9200")
		modify(&cfg)
		_, err := NewSink(logger.Root(), cfg, &mockEmitter{}, promreg.NewMetricFactory("testsinkconfig_", nil, nil))
		if expected == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, expected)
		}
	}
	check(nil, func(cfg *Config) {})
	check(base.ErrMissingConfiguration, func(cfg *Config) { cfg.Upstream.Endpoint = "" })
	check(base.ErrMalformedEndpoint, func(cfg *Config) { cfg.Upstream.Endpoint = "http://[::1" })
	check(base.ErrMalformedEndpoint, func(cfg *Config) { cfg.Upstream.Endpoint = "localhost:9200" })
	check(base.ErrMalformedEndpoint, func(cfg *Config) { cfg.Upstream.Endpoint = "ftp://localhost" })
	check(base.ErrMissingConfiguration, func(cfg *Config) { cfg.Serialization.IndexPrefix = "" })
	for _, c := range []string{`\`, "/", " ", ",", `"`, "*", "?", "|", "<", ">", "A"} {
		prefix := "logs" + c + "x"
		check(base.ErrInvalidIdentifier, func(cfg *Config) { cfg.Serialization.IndexPrefix = prefix })
	}
	check(base.ErrInvalidConfiguration, func(cfg *Config) { cfg.MaxBufferSize = defs.SinkMinBufferCapacity - 1 })
	check(base.ErrInvalidConfiguration, func(cfg *Config) { cfg.BufferingCount = cfg.MaxBufferSize + 1 })
	check(nil, func(cfg *Config) { cfg.BufferingCount = cfg.MaxBufferSize })
	check(base.ErrInvalidConfiguration, func(cfg *Config) {
		cfg.BufferingCount = 0
		cfg.BufferingInterval = 0
	})
	// endpoint is checked first
	check(base.ErrMissingConfiguration, func(cfg *Config) {
		cfg.Upstream.Endpoint = ""
		cfg.Serialization.IndexPrefix = "BAD"
		cfg.MaxBufferSize = 1
	})
}

func TestSinkBatchesWithClientError(t *testing.T) {
	var lock sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(body))
		first := len(bodies) == 1
		lock.Unlock()
		if first {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
			return
		}
		_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.BufferingCount = 2
	cfg.BufferingInterval = 200 * time.Millisecond
	emitter := &mockEmitter{}
	sink, err := NewSink(logger.Root(), cfg, emitter, promreg.NewMetricFactory("testsinkhttp_", nil, nil))
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		assert.True(t, sink.Enqueue(newTestEntry(i)))
	}
	sink.Start()
	// the first batch is sent by size trigger and the leftover by timer
	numRequests := func() int {
		lock.Lock()
		defer lock.Unlock()
		return len(bodies)
	}
	assert.Eventually(t, func() bool { return numRequests() == 2 }, defs.TestReadTimeout, 10*time.Millisecond)
	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout))
	assert.NoError(t, sink.Close())

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, 4, bytes.Count([]byte(bodies[0]), []byte("\n")))
	assert.Contains(t, bodies[0], `"EventId":1,`)
	assert.Contains(t, bodies[0], `"EventId":2,`)
	assert.Equal(t, 2, bytes.Count([]byte(bodies[1]), []byte("\n")))
	assert.Contains(t, bodies[1], `"EventId":3,`)

	clientErrors := emitter.eventsOf(base.DiagnosticClientError)
	require.Len(t, clientErrors, 1)
	assert.Equal(t, 2, clientErrors[0].NumEntries)
	assert.Contains(t, clientErrors[0].Message, "mapper_parsing_exception")
	assert.Contains(t, clientErrors[0].Excerpt, `"_index":"testlogs-2021.03.04"`)
	assert.Empty(t, emitter.eventsOf(base.DiagnosticTransportFailure))
}

func TestSinkOverflowWhileStalled(t *testing.T) {
	transport := newMockTransport()
	transport.release = make(chan struct{})
	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingCount = 100
	emitter := &mockEmitter{}
	mfactory := promreg.NewMetricFactory("testsinkoverflow_", nil, nil)
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, emitter, mfactory)
	require.NoError(t, err)
	sink.Start()

	for i := 0; i < 100; i++ {
		assert.True(t, sink.Enqueue(newTestEntry(i)))
	}
	select {
	case <-transport.started:
	case <-time.After(defs.TestReadTimeout):
		require.Fail(t, "first batch not sent")
	}
	// the coordinator is stuck in sending; fill the buffer and overflow by 50
	start := time.Now()
	accepted := 0
	for i := 0; i < cfg.MaxBufferSize+50; i++ {
		if sink.Enqueue(newTestEntry(1000 + i)) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), time.Second, "enqueue must not block")
	assert.Equal(t, cfg.MaxBufferSize, accepted)
	assert.EqualValues(t, 50, sink.DroppedCount())
	assert.Equal(t, cfg.MaxBufferSize, sink.Stats().Buffered)

	close(transport.release)
	assert.NoError(t, sink.Close())
	assert.EqualValues(t, 50, sink.DroppedCount())
	assert.Equal(t, 0, sink.Stats().Buffered)

	total := 0
	for _, n := range transport.sentEntryCounts() {
		assert.LessOrEqual(t, n, cfg.BufferingCount)
		total += n
	}
	assert.Equal(t, 100+cfg.MaxBufferSize, total)

	dropEvents := emitter.eventsOf(base.DiagnosticEntriesDropped)
	require.NotEmpty(t, dropEvents)
	reported := 0
	for _, e := range dropEvents {
		reported += e.NumEntries
	}
	assert.Equal(t, 50, reported)
	assert.EqualValues(t, 50, mfactory.AddOrGetPrefix("sink_", nil, nil).AddOrGetCounterVec("dropped_entries_total", "", []string{"reason"}, nil).WithLabelValues("overflow").Get())
}

func TestSinkFlushOnlyWaitsEarlierEntries(t *testing.T) {
	transport := newMockTransport()
	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingInterval = 0
	cfg.BufferingCount = 10
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, &mockEmitter{}, promreg.NewMetricFactory("testsinkflush_", nil, nil))
	require.NoError(t, err)
	sink.Start()

	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout), "empty sink is flushed immediately")
	for i := 0; i < 3; i++ {
		sink.Enqueue(newTestEntry(i))
	}
	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout))
	assert.Equal(t, []int{3}, transport.sentEntryCounts())
	assert.Equal(t, 0, sink.Stats().Buffered)
	assert.Equal(t, batchbuffer.StateOpen, sink.Stats().State, "flush doesn't close")
	assert.False(t, sink.Stats().LastFlush.IsZero())

	sink.Enqueue(newTestEntry(3))
	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout))
	assert.Equal(t, []int{3, 1}, transport.sentEntryCounts())
	assert.NoError(t, sink.Close())
	assert.True(t, sink.Stopped().Wait(defs.TestReadTimeout))
}

func TestSinkCloseDeliversBuffered(t *testing.T) {
	transport := newMockTransport()
	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingCount = 2
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, &mockEmitter{}, promreg.NewMetricFactory("testsinkclose_", nil, nil))
	require.NoError(t, err)
	// not started: Close starts the coordinator for the final drain
	for i := 0; i < 5; i++ {
		sink.Enqueue(newTestEntry(i))
	}
	assert.NoError(t, sink.Close())
	assert.Equal(t, []int{2, 2, 1}, transport.sentEntryCounts())
	assert.False(t, sink.Enqueue(newTestEntry(9)))
	assert.EqualValues(t, 1, sink.DroppedCount())
	assert.NoError(t, sink.Close())
	assert.Equal(t, batchbuffer.StateClosed, sink.Stats().State)
}

func TestSinkCloseTimeout(t *testing.T) {
	transport := newMockTransport()
	transport.release = make(chan struct{})
	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingCount = 2
	timeout := 100 * time.Millisecond
	cfg.OnCompletedTimeout = &timeout
	emitter := &mockEmitter{}
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, emitter, promreg.NewMetricFactory("testsinktimeout_", nil, nil))
	require.NoError(t, err)
	sink.Start()

	sink.Enqueue(newTestEntry(1))
	sink.Enqueue(newTestEntry(2))
	select {
	case <-transport.started:
	case <-time.After(defs.TestReadTimeout):
		require.Fail(t, "first batch not sent")
	}
	for i := 3; i <= 5; i++ {
		sink.Enqueue(newTestEntry(i))
	}
	flushed := sink.Flush()

	closeErr := sink.Close()
	assert.True(t, errors.Is(closeErr, base.ErrNotFlushed))
	assert.Contains(t, closeErr.Error(), "3 entries discarded")
	assert.EqualValues(t, 3, sink.DroppedCount())
	assert.True(t, flushed.Wait(defs.TestReadTimeout), "flush waiters are released on close")
	assert.False(t, sink.Enqueue(newTestEntry(6)))
	assert.EqualValues(t, 4, sink.DroppedCount())

	close(transport.release)
	assert.True(t, sink.Stopped().Wait(defs.TestReadTimeout))
	assert.Equal(t, []int{2}, transport.sentEntryCounts())
	assert.Equal(t, closeErr, sink.Close())
}

func TestSinkFailuresDoNotStopDispatch(t *testing.T) {
	transport := newMockTransport()
	transport.panicAt = 1
	transport.outcomes = []base.SendOutcome{
		{},
		{Kind: base.OutcomeTransportFailure, StatusCode: 503, Detail: "unavailable"},
		{Kind: base.OutcomePartialFailure, StatusCode: 200, Detail: "1 of 2 items rejected", FailedEntries: 1},
	}
	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingCount = 2
	emitter := &mockEmitter{}
	mfactory := promreg.NewMetricFactory("testsinkfailures_", nil, nil)
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, emitter, mfactory)
	require.NoError(t, err)
	sink.Start()

	unencodable := newTestEntry(100)
	unencodable.Payload = append(unencodable.Payload, base.PayloadField{Name: "bad", Value: math.Inf(1)})
	for i := 0; i < 6; i++ {
		sink.Enqueue(newTestEntry(i))
	}
	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout))
	sink.Enqueue(unencodable)
	sink.Enqueue(newTestEntry(7))
	assert.True(t, sink.Flush().Wait(defs.TestReadTimeout))
	sink.Enqueue(newTestEntry(8))
	assert.NoError(t, sink.Close())

	assert.Equal(t, []int{2, 2, 2, 1}, transport.sentEntryCounts())
	assert.Len(t, emitter.eventsOf(base.DiagnosticDispatchPanic), 1)
	if failures := emitter.eventsOf(base.DiagnosticTransportFailure); assert.Len(t, failures, 1) {
		assert.Equal(t, 2, failures[0].NumEntries)
		assert.NotNil(t, failures[0].Payload)
	}
	if rejections := emitter.eventsOf(base.DiagnosticItemsRejected); assert.Len(t, rejections, 1) {
		assert.Equal(t, 1, rejections[0].NumEntries)
	}
	if serializationErrors := emitter.eventsOf(base.DiagnosticSerializationFailed); assert.Len(t, serializationErrors, 1) {
		assert.Equal(t, 2, serializationErrors[0].NumEntries)
	}
	sinkMetrics := mfactory.AddOrGetPrefix("sink_", nil, nil)
	assert.EqualValues(t, 1, sinkMetrics.AddOrGetCounter("dispatch_panics_total", "", nil, nil).Get())
	assert.EqualValues(t, 5, sinkMetrics.AddOrGetCounter("dispatch_cycles_total", "", nil, nil).Get())
}

func TestSinkPartialFailureSavesOnlyRejectedEntries(t *testing.T) {
	transport := newMockTransport()
	transport.outcomes = []base.SendOutcome{
		{Kind: base.OutcomePartialFailure, StatusCode: 200, Detail: "2 of 3 items rejected", FailedEntries: 2, FailedItems: []int{0, 2}},
	}
	deadLetterPath := filepath.Join(t.TempDir(), "deadletter")
	mfactory := promreg.NewMetricFactory("testsinkrejected_", nil, nil)
	emitter, eerr := diagnostics.NewDeadLetterEmitter(logger.Root(), deadLetterPath, mfactory)
	require.NoError(t, eerr)
	defer emitter.Close()

	cfg := newTestConfig("http://localhost:9200")
	cfg.BufferingCount = 3
	sink, err := NewSinkWithTransport(logger.Root(), cfg, transport, emitter, mfactory)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		sink.Enqueue(newTestEntry(i))
	}
	sink.Start()
	assert.NoError(t, sink.Close())
	assert.Equal(t, []int{3}, transport.sentEntryCounts())

	resendTransport := newMockTransport()
	result, rerr := diagnostics.ResendDeadLetters(logger.Root(), deadLetterPath, resendTransport)
	require.NoError(t, rerr)
	assert.Equal(t, diagnostics.ResendResult{Resent: 1}, result)
	require.Equal(t, []int{2}, resendTransport.sentEntryCounts())
	resent := string(resendTransport.payloads[0].Data)
	assert.Contains(t, resent, `"EventId":1,`)
	assert.Contains(t, resent, `"EventId":3,`)
	assert.NotContains(t, resent, `"EventId":2,`, "accepted entry must not be sent again")
}
