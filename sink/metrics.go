package sink

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

type sinkMetrics struct {
	dispatchCyclesTotal promext.RWCounter
	dispatchPanicsTotal promext.RWCounter
}

func newSinkMetrics(sinkMetricCreator promreg.MetricCreator) sinkMetrics {
	return sinkMetrics{
		dispatchCyclesTotal: sinkMetricCreator.AddOrGetCounter("dispatch_cycles_total", "Numbers of dispatched batches", nil, nil),
		dispatchPanicsTotal: sinkMetricCreator.AddOrGetCounter("dispatch_panics_total", "Numbers of batches aborted by panics", nil, nil),
	}
}
