package sink

import (
	"sync"
	"time"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/output/elasticbulk"
)

type mockTransport struct {
	lock     sync.Mutex
	payloads []base.BulkPayload
	outcomes []base.SendOutcome // outcome of the n-th send, success if unspecified
	started  chan struct{}      // notified at the beginning of each send
	release  chan struct{}      // sends block until closed, if not nil
	panicAt  int                // 1-based index of send to panic, 0 to never
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		started: make(chan struct{}, 100),
	}
}

func (mt *mockTransport) Send(payload base.BulkPayload) base.SendOutcome {
	mt.lock.Lock()
	mt.payloads = append(mt.payloads, payload)
	n := len(mt.payloads)
	var outcome base.SendOutcome
	if n <= len(mt.outcomes) {
		outcome = mt.outcomes[n-1]
	} else {
		outcome = base.SendOutcome{Kind: base.OutcomeSuccess, StatusCode: 200}
	}
	release := mt.release
	panicAt := mt.panicAt
	mt.lock.Unlock()

	select {
	case mt.started <- struct{}{}:
	default:
	}
	if release != nil {
		<-release
	}
	if n == panicAt {
		panic("mock transport failure")
	}
	if outcome.Kind != base.OutcomeSuccess && outcome.FailedEntries == 0 {
		outcome.FailedEntries = payload.NumEntries
	}
	return outcome
}

func (mt *mockTransport) sentEntryCounts() []int {
	mt.lock.Lock()
	defer mt.lock.Unlock()
	counts := make([]int, 0, len(mt.payloads))
	for _, p := range mt.payloads {
		counts = append(counts, p.NumEntries)
	}
	return counts
}

type mockEmitter struct {
	lock   sync.Mutex
	events []base.DiagnosticEvent
}

func (me *mockEmitter) Emit(event base.DiagnosticEvent) {
	me.lock.Lock()
	defer me.lock.Unlock()
	me.events = append(me.events, event)
}

func (me *mockEmitter) eventsOf(kind base.DiagnosticKind) []base.DiagnosticEvent {
	me.lock.Lock()
	defer me.lock.Unlock()
	var found []base.DiagnosticEvent
	for _, e := range me.events {
		if e.Kind == kind {
			found = append(found, e)
		}
	}
	return found
}

func newTestConfig(endpoint string) Config {
	config := NewConfig()
	config.BufferingInterval = time.Hour
	config.BufferingCount = 100
	config.MaxBufferSize = defs.SinkMinBufferCapacity
	config.Serialization = elasticbulk.NewSerializationConfig()
	config.Serialization.IndexPrefix = "testlogs"
	config.Serialization.InstanceName = "test-host"
	config.Upstream = elasticbulk.NewUpstreamConfig()
	config.Upstream.Endpoint = endpoint
	return config
}

func newTestEntry(id int) *base.StructuredEntry {
	return &base.StructuredEntry{
		EventID:      id,
		EventName:    "TestEvent",
		Timestamp:    time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		ProviderName: "TestProvider",
		Level:        base.LevelInformational,
		Message:      "hello",
		Payload: []base.PayloadField{
			{Name: "seq", Value: id},
		},
	}
}
