package batchbuffer

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

type bufferMetrics struct {
	bufferedEntries promext.RWGauge
	enqueuedTotal   promext.RWCounter
	droppedOverflow promext.RWCounter
	droppedClosed   promext.RWCounter
	droppedShutdown promext.RWCounter
}

func newBufferMetrics(metricCreator promreg.MetricCreator) bufferMetrics {
	droppedTotal := metricCreator.AddOrGetCounterVec("dropped_entries_total", "Numbers of entries dropped by the buffer", []string{"reason"}, nil)
	metrics := bufferMetrics{
		bufferedEntries: metricCreator.AddOrGetGauge("buffered_entries", "Numbers of currently buffered entries", nil, nil),
		enqueuedTotal:   metricCreator.AddOrGetCounter("enqueued_entries_total", "Numbers of entries accepted into the buffer", nil, nil),
		droppedOverflow: droppedTotal.WithLabelValues(string(DropOverflow)),
		droppedClosed:   droppedTotal.WithLabelValues(string(DropClosed)),
		droppedShutdown: droppedTotal.WithLabelValues(string(DropShutdown)),
	}
	return metrics
}

func (metrics *bufferMetrics) onDropped(reason DropReason, count int) {
	switch reason {
	case DropOverflow:
		metrics.droppedOverflow.Add(uint64(count))
	case DropClosed:
		metrics.droppedClosed.Add(uint64(count))
	case DropShutdown:
		metrics.droppedShutdown.Add(uint64(count))
	}
}
