package run

import (
	"fmt"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/diagnostics"
	"github.com/relex/bulk-sink/output/elasticbulk"
	"github.com/relex/bulk-sink/sink"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// Loader loads configuration from file and prepares the components to be launched
//
// Loader should take care of everything derived from the config file, but not trigger anything automatically
type Loader struct {
	filepath string // config file path

	Config
	MetricFactory *promreg.MetricFactory
}

// NewLoaderFromConfigFile loads and verifies the config file
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}
	return &Loader{
		filepath:      filepath,
		Config:        *config,
		MetricFactory: promreg.NewMetricFactory(metricPrefix, nil, nil),
	}, nil
}

// NewDiagnosticsEmitter creates the configured diagnostics emitter(s)
func (loader *Loader) NewDiagnosticsEmitter(parentLogger logger.Logger) (base.DiagnosticsEmitter, error) {
	return diagnostics.NewEmitterFromConfigs(parentLogger, loader.Diagnostics, loader.MetricFactory)
}

// LaunchSink creates the sink with its diagnostics emitter and starts it
//
// The returned emitter is owned by the caller and should be closed by diagnostics.CloseEmitter after the sink is closed
func (loader *Loader) LaunchSink(parentLogger logger.Logger) (*sink.Sink, base.DiagnosticsEmitter, error) {
	emitter, err := loader.NewDiagnosticsEmitter(parentLogger)
	if err != nil {
		return nil, nil, err
	}
	s, serr := sink.NewSink(parentLogger, loader.Sink, emitter, loader.MetricFactory)
	if serr != nil {
		diagnostics.CloseEmitter(emitter)
		return nil, nil, fmt.Errorf("sink: %w", serr)
	}
	s.Start()
	return s, emitter, nil
}

// NewTransport creates a standalone transport to the configured endpoint
func (loader *Loader) NewTransport(parentLogger logger.Logger) (*elasticbulk.HTTPTransport, error) {
	return elasticbulk.NewHTTPTransport(parentLogger, loader.Sink.Upstream, loader.MetricFactory)
}
