package run

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	inputSuccessCounter prometheus.Counter
	inputFailureCounter prometheus.Counter
)

func init() {
	opts := prometheus.CounterOpts{}
	opts.Name = "bulksink_input_streams_total"
	opts.Help = "Numbers of input streams read to the end or aborted"
	vec := prometheus.NewCounterVec(opts, []string{"status"})
	prometheus.MustRegister(vec)

	inputSuccessCounter = vec.WithLabelValues("success")
	inputFailureCounter = vec.WithLabelValues("failure")
}
