package elasticbulk

import (
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// clientMetrics defines metrics of bulk requests
type clientMetrics struct {
	forwardAttemptsTotal  promext.RWCounter
	forwardedCountTotal   promext.RWCounter
	forwardedLengthTotal  promext.RWCounter
	deliveredEntriesTotal promext.RWCounter
	failedEntriesTotal    *promext.RWCounterVec
	networkErrorsTotal    promext.RWCounter
	nonNetworkErrorsTotal promext.RWCounter
}

func newClientMetrics(metricCreator promreg.MetricCreator) *clientMetrics {
	outputMetricCreator := metricCreator.AddOrGetPrefix("output_", []string{"output"}, []string{"elasticBulk"})
	return &clientMetrics{
		forwardAttemptsTotal:  outputMetricCreator.AddOrGetCounter("forward_attempts_total", "Numbers of bulk request attempts", nil, nil),
		forwardedCountTotal:   outputMetricCreator.AddOrGetCounter("forwarded_payloads_total", "Numbers of bulk payloads accepted with 2xx", nil, nil),
		forwardedLengthTotal:  outputMetricCreator.AddOrGetCounter("forwarded_payload_bytes_total", "Total uncompressed length in bytes of payloads accepted with 2xx", nil, nil),
		deliveredEntriesTotal: outputMetricCreator.AddOrGetCounter("delivered_entries_total", "Numbers of entries accepted by remote", nil, nil),
		failedEntriesTotal:    outputMetricCreator.AddOrGetCounterVec("failed_entries_total", "Numbers of entries not accepted by remote", []string{"outcome"}, nil),
		networkErrorsTotal:    outputMetricCreator.AddOrGetCounter("network_errors_total", "Numbers of network errors", nil, nil),
		nonNetworkErrorsTotal: outputMetricCreator.AddOrGetCounter("nonnetwork_errors_total", "Numbers of non-network errors (auth, rejected payload, server errors) from upstream", nil, nil),
	}
}

func (metrics *clientMetrics) OnForwarding(payload base.BulkPayload) {
	metrics.forwardAttemptsTotal.Inc()
}

func (metrics *clientMetrics) OnError(err error) {
	if err != nil && util.IsNetworkError(err) {
		metrics.networkErrorsTotal.Inc()
	} else {
		metrics.nonNetworkErrorsTotal.Inc()
	}
}

func (metrics *clientMetrics) OnOutcome(payload base.BulkPayload, outcome base.SendOutcome) {
	switch outcome.Kind {
	case base.OutcomeSuccess, base.OutcomePartialFailure:
		metrics.forwardedCountTotal.Inc()
		metrics.forwardedLengthTotal.Add(uint64(len(payload.Data)))
	default:
		if outcome.Err == nil {
			metrics.nonNetworkErrorsTotal.Inc()
		}
	}
	delivered := payload.NumEntries - outcome.FailedEntries
	if delivered > 0 {
		metrics.deliveredEntriesTotal.Add(uint64(delivered))
	}
	if outcome.FailedEntries > 0 {
		metrics.failedEntriesTotal.WithLabelValues(outcome.Kind.String()).Add(uint64(outcome.FailedEntries))
	}
}
