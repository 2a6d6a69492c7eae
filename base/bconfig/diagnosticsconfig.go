package bconfig

import (
	"github.com/relex/bulk-sink/base"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// DiagnosticsConfig provides an interface for the configuration of DiagnosticsEmitter(s)
//
// All the implementations should support YAML unmarshalling
type DiagnosticsConfig interface {
	BaseConfig

	// NewEmitter creates the emitter. Resources like directories are prepared here.
	NewEmitter(parentLogger logger.Logger, metricCreator promreg.MetricCreator) (base.DiagnosticsEmitter, error)

	VerifyConfig() error
}

type DiagnosticsConfigHolder = ConfigHolder[DiagnosticsConfig]
type DiagnosticsConfigCreatorTable = ConfigCreatorTable[DiagnosticsConfig]
