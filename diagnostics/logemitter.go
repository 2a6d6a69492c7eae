package diagnostics

import (
	"sync"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"golang.org/x/time/rate"
)

// LogEmitter writes diagnostics events to logger, rate-limited
//
// Events over the limit are counted and summarized in the next logged event.
type LogEmitter struct {
	logger     logger.Logger
	limiter    *rate.Limiter
	lock       sync.Mutex
	suppressed int
	metrics    emitterMetrics
}

// NewLogEmitter creates a LogEmitter allowing eventsPerSecond in average and burst at most
func NewLogEmitter(parentLogger logger.Logger, eventsPerSecond float64, burst int, metricCreator promreg.MetricCreator) *LogEmitter {
	return &LogEmitter{
		logger:     parentLogger.WithField(defs.LabelComponent, "DiagnosticsLogger"),
		limiter:    rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
		lock:       sync.Mutex{},
		suppressed: 0,
		metrics:    newEmitterMetrics(metricCreator, "log"),
	}
}

// Emit logs the event if allowed by the rate limit
func (emitter *LogEmitter) Emit(event base.DiagnosticEvent) {
	emitter.metrics.onEvent(event)
	emitter.lock.Lock()
	if !emitter.limiter.Allow() {
		emitter.suppressed++
		emitter.lock.Unlock()
		emitter.metrics.suppressedTotal.Inc()
		return
	}
	suppressed := emitter.suppressed
	emitter.suppressed = 0
	emitter.lock.Unlock()

	eventLogger := emitter.logger.WithFields(logger.Fields{
		"kind":    string(event.Kind),
		"entries": event.NumEntries,
	})
	if event.Payload != nil {
		eventLogger = eventLogger.WithField(defs.LabelBatch, event.Payload.ID)
	}
	if suppressed > 0 {
		eventLogger.Warnf("%d previous events suppressed by rate limit", suppressed)
	}
	switch event.Kind {
	case base.DiagnosticDispatchPanic:
		eventLogger.Errorf("%s", event.Message)
	default:
		eventLogger.Warnf("%s", event.Message)
	}
	if event.Excerpt != "" {
		eventLogger.Debugf("payload excerpt: %s", event.Excerpt)
	}
}

// Suppressed returns the count of events not logged yet due to the rate limit
func (emitter *LogEmitter) Suppressed() int {
	emitter.lock.Lock()
	defer emitter.lock.Unlock()
	return emitter.suppressed
}

type emitterMetrics struct {
	eventsTotal     *promext.RWCounterVec
	suppressedTotal promext.RWCounter
	errorsTotal     promext.RWCounter
}

func newEmitterMetrics(metricCreator promreg.MetricCreator, emitterType string) emitterMetrics {
	emitterMetricCreator := metricCreator.AddOrGetPrefix("diagnostics_", []string{"emitter"}, []string{emitterType})
	return emitterMetrics{
		eventsTotal:     emitterMetricCreator.AddOrGetCounterVec("events_total", "Numbers of received diagnostics events", []string{"kind"}, nil),
		suppressedTotal: emitterMetricCreator.AddOrGetCounter("suppressed_events_total", "Numbers of events not handled due to rate limit", nil, nil),
		errorsTotal:     emitterMetricCreator.AddOrGetCounter("errors_total", "Numbers of errors in handling events", nil, nil),
	}
}

func (metrics *emitterMetrics) onEvent(event base.DiagnosticEvent) {
	metrics.eventsTotal.WithLabelValues(string(event.Kind)).Inc()
}
