// Package diagnostics provides the receivers of diagnostics events reported by sinks
package diagnostics

import (
	"fmt"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/base/bconfig"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// LogConfig configures a LogEmitter
type LogConfig struct {
	bconfig.Header  `yaml:",inline"`
	EventsPerSecond float64 `yaml:"eventsPerSecond"`
	Burst           int     `yaml:"burst"`
}

// DeadLetterConfig configures a DeadLetterEmitter
type DeadLetterConfig struct {
	bconfig.Header `yaml:",inline"`
	Path           string `yaml:"path"`
}

func init() {
	bconfig.RegisterConfigConstructors(bconfig.DiagnosticsConfigCreatorTable{
		"log": func() bconfig.DiagnosticsConfig {
			return &LogConfig{
				Header:          bconfig.Header{Type: "log"},
				EventsPerSecond: defs.DiagnosticsDefaultEventsPerSecond,
				Burst:           defs.DiagnosticsDefaultBurst,
			}
		},
		"deadLetter": func() bconfig.DiagnosticsConfig {
			return &DeadLetterConfig{
				Header: bconfig.Header{Type: "deadLetter"},
				Path:   "",
			}
		},
	})
}

// NewEmitter creates a LogEmitter
func (cfg *LogConfig) NewEmitter(parentLogger logger.Logger, metricCreator promreg.MetricCreator) (base.DiagnosticsEmitter, error) {
	return NewLogEmitter(parentLogger, cfg.EventsPerSecond, cfg.Burst, metricCreator), nil
}

// VerifyConfig checks the rate limit
func (cfg *LogConfig) VerifyConfig() error {
	if cfg.EventsPerSecond <= 0 {
		return fmt.Errorf(".eventsPerSecond: %w: must be positive", base.ErrInvalidConfiguration)
	}
	if cfg.Burst <= 0 {
		return fmt.Errorf(".burst: %w: must be positive", base.ErrInvalidConfiguration)
	}
	return nil
}

// NewEmitter creates a DeadLetterEmitter
func (cfg *DeadLetterConfig) NewEmitter(parentLogger logger.Logger, metricCreator promreg.MetricCreator) (base.DiagnosticsEmitter, error) {
	return NewDeadLetterEmitter(parentLogger, cfg.Path, metricCreator)
}

// VerifyConfig checks the path
func (cfg *DeadLetterConfig) VerifyConfig() error {
	if cfg.Path == "" {
		return fmt.Errorf(".path: %w", base.ErrMissingConfiguration)
	}
	return nil
}

// NewEmitterFromConfigs creates emitters from the list of config holders, combined as one
//
// An empty list results in a default LogEmitter
func NewEmitterFromConfigs(parentLogger logger.Logger, holders []bconfig.DiagnosticsConfigHolder, metricCreator promreg.MetricCreator) (base.DiagnosticsEmitter, error) {
	if len(holders) == 0 {
		return NewLogEmitter(parentLogger, defs.DiagnosticsDefaultEventsPerSecond, defs.DiagnosticsDefaultBurst, metricCreator), nil
	}
	emitters := make(MultiEmitter, 0, len(holders))
	for i, holder := range holders {
		if err := holder.Value.VerifyConfig(); err != nil {
			emitters.Close()
			return nil, fmt.Errorf("diagnostics[%d]%w", i, err)
		}
		emitter, err := holder.Value.NewEmitter(parentLogger, metricCreator)
		if err != nil {
			emitters.Close()
			return nil, fmt.Errorf("diagnostics[%d]: %w", i, err)
		}
		emitters = append(emitters, emitter)
	}
	if len(emitters) == 1 {
		return emitters[0], nil
	}
	return emitters, nil
}
