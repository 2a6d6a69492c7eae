package diagnostics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/xattr"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/base/bconfig"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	lock     sync.Mutex
	payloads []base.BulkPayload
	outcomes map[string]base.OutcomeKind // by payload ID, success if absent
}

func (rt *recordingTransport) Send(payload base.BulkPayload) base.SendOutcome {
	rt.lock.Lock()
	defer rt.lock.Unlock()
	rt.payloads = append(rt.payloads, payload)
	kind, found := rt.outcomes[payload.ID]
	if !found {
		kind = base.OutcomeSuccess
	}
	return base.SendOutcome{Kind: kind, StatusCode: 200}
}

func newTestPayload(id string, numEntries int) *base.BulkPayload {
	data := ""
	for i := 0; i < numEntries; i++ {
		data += `{"index":{"_index":"logs-2021.01.02"}}` + "\n" + `{"EventId":1}` + "\n"
	}
	return &base.BulkPayload{ID: id, Data: []byte(data), NumEntries: numEntries}
}

func TestLogEmitterRateLimit(t *testing.T) {
	mfactory := promreg.NewMetricFactory("testdiaglog_", nil, nil)
	emitter := NewLogEmitter(logger.Root(), 0.001, 2, mfactory)
	for i := 0; i < 5; i++ {
		emitter.Emit(base.DiagnosticEvent{
			Kind:       base.DiagnosticTransportFailure,
			Time:       time.Now(),
			Message:    "transportFailure (HTTP 503): unavailable",
			NumEntries: 3,
			Payload:    newTestPayload("p1", 3),
		})
	}
	assert.Equal(t, 3, emitter.Suppressed())
	prefixed := mfactory.AddOrGetPrefix("diagnostics_", []string{"emitter"}, []string{"log"})
	assert.EqualValues(t, 5, prefixed.AddOrGetCounterVec("events_total", "", []string{"kind"}, nil).WithLabelValues("transportFailure").Get())
	assert.EqualValues(t, 3, prefixed.AddOrGetCounter("suppressed_events_total", "", nil, nil).Get())
}

func TestDeadLetterSaveAndResend(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "deadletter")
	emitter, err := NewDeadLetterEmitter(logger.Root(), path, promreg.NewMetricFactory("testdiagdead_", nil, nil))
	require.NoError(t, err)

	emitter.Emit(base.DiagnosticEvent{Kind: base.DiagnosticEntriesDropped, Message: "10 entries dropped", NumEntries: 10})
	emitter.Emit(base.DiagnosticEvent{Kind: base.DiagnosticClientError, NumEntries: 2, Payload: newTestPayload("0001-a", 2)})
	emitter.Emit(base.DiagnosticEvent{Kind: base.DiagnosticTransportFailure, NumEntries: 1, Payload: newTestPayload("0002-b", 1)})
	emitter.Emit(base.DiagnosticEvent{Kind: base.DiagnosticItemsRejected, NumEntries: 1, Payload: newTestPayload("0003-c", 3)})
	assert.NoError(t, emitter.Close())

	dir, oerr := os.Open(path)
	require.NoError(t, oerr)
	filenames, lerr := ListDeadLetters(dir)
	require.NoError(t, lerr)
	assert.Equal(t, []string{"0001-a.ndjson", "0002-b.ndjson", "0003-c.ndjson"}, filenames)

	letter, rerr := LoadDeadLetter(dir, "0001-a.ndjson")
	require.NoError(t, rerr)
	assert.Equal(t, "0001-a", letter.Payload.ID)
	assert.Equal(t, 2, letter.Payload.NumEntries)
	assert.Equal(t, newTestPayload("0001-a", 2).Data, letter.Payload.Data)
	if _, xerr := xattr.Get(filepath.Join(path, "0001-a.ndjson"), defs.DeadLetterKindXattr); xerr == nil {
		assert.Equal(t, base.DiagnosticClientError, letter.Kind)
	}
	dir.Close()

	transport := &recordingTransport{outcomes: map[string]base.OutcomeKind{
		"0002-b": base.OutcomeTransportFailure,
		"0003-c": base.OutcomePartialFailure,
	}}
	result, serr := ResendDeadLetters(logger.Root(), path, transport)
	require.NoError(t, serr)
	assert.Equal(t, ResendResult{Resent: 2, Failed: 1, Invalid: 0}, result)
	assert.Len(t, transport.payloads, 3)

	remaining, _ := util.ListFiles(path)
	assert.Equal(t, []string{filepath.Join(path, "0002-b.ndjson")}, remaining)
}

func TestDiagnosticsConfig(t *testing.T) {
	var holders []bconfig.DiagnosticsConfigHolder
	require.NoError(t, util.UnmarshalYamlString(`
- type: log
  eventsPerSecond: 2.5
- type: deadLetter
  path: `+t.TempDir()+`
`, &holders))
	require.Len(t, holders, 2)
	logConfig, ok := holders[0].Value.(*LogConfig)
	require.True(t, ok)
	assert.Equal(t, 2.5, logConfig.EventsPerSecond)
	assert.Equal(t, defs.DiagnosticsDefaultBurst, logConfig.Burst)
	assert.Equal(t, "deadLetter", holders[1].Value.GetType())

	emitter, err := NewEmitterFromConfigs(logger.Root(), holders, promreg.NewMetricFactory("testdiagconfig_", nil, nil))
	require.NoError(t, err)
	assert.IsType(t, MultiEmitter{}, emitter)
	assert.Len(t, emitter.(MultiEmitter), 2)
	deadLetter, ok := emitter.(MultiEmitter)[1].(*DeadLetterEmitter)
	require.True(t, ok)
	assert.NoError(t, CloseEmitter(emitter))
	assert.ErrorIs(t, deadLetter.dir.Close(), os.ErrClosed, "directory closed along with the multi emitter")
	assert.ErrorIs(t, CloseEmitter(emitter), os.ErrClosed)

	defaultEmitter, derr := NewEmitterFromConfigs(logger.Root(), nil, promreg.NewMetricFactory("testdiagdefault_", nil, nil))
	require.NoError(t, derr)
	assert.IsType(t, &LogEmitter{}, defaultEmitter)
	assert.NoError(t, CloseEmitter(defaultEmitter))

	assert.ErrorContains(t, util.UnmarshalYamlString("- type: log\n  rate: 1\n", &holders), "field rate not found")
	assert.ErrorContains(t, util.UnmarshalYamlString("- type: kafka\n", &holders), "unsupported 'kafka'")

	var missingPath []bconfig.DiagnosticsConfigHolder
	require.NoError(t, util.UnmarshalYamlString("- type: deadLetter\n", &missingPath))
	_, merr := NewEmitterFromConfigs(logger.Root(), missingPath, promreg.NewMetricFactory("testdiagmissing_", nil, nil))
	assert.ErrorIs(t, merr, base.ErrMissingConfiguration)
}
