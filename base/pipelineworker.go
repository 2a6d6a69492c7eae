package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker represents a background worker started once and stopped by its owner, e.g. the sink coordinator
//
// Stopped is signaled after the worker has finished its last job and will not touch shared state again.
type PipelineWorker interface {
	Start()
	Stopped() channels.Awaitable
}
