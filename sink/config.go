package sink

import (
	"fmt"
	"time"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/output/elasticbulk"
)

// Config defines a sink: buffering policy, serialization options and remote endpoint
type Config struct {
	BufferingInterval  time.Duration                   `yaml:"bufferingInterval"`  // period of timer-triggered dispatch, disabled if <= 0
	BufferingCount     int                             `yaml:"bufferingCount"`     // buffered count to trigger dispatch and max entries per batch, disabled if 0
	MaxBufferSize      int                             `yaml:"maxBufferSize"`      // capacity of buffer; new entries are dropped when full
	OnCompletedTimeout *time.Duration                  `yaml:"onCompletedTimeout"` // max wait of Close for the final drain, nil to wait forever
	Serialization      elasticbulk.SerializationConfig `yaml:"serialization"`
	Upstream           elasticbulk.UpstreamConfig      `yaml:"upstream"`
}

// NewConfig creates a Config with defaults, to be filled by config files
func NewConfig() Config {
	return Config{
		BufferingInterval:  defs.SinkDefaultBufferingInterval,
		BufferingCount:     defs.SinkDefaultBufferingCount,
		MaxBufferSize:      defs.SinkDefaultMaxBufferSize,
		OnCompletedTimeout: nil,
		Serialization:      elasticbulk.NewSerializationConfig(),
		Upstream:           elasticbulk.NewUpstreamConfig(),
	}
}

// VerifyConfig checks the config in the order of: endpoint, index prefix, buffering parameters
//
// Returned errors wrap one of the configuration errors in base
func (cfg *Config) VerifyConfig() error {
	if err := cfg.Upstream.VerifyConfig(); err != nil {
		return fmt.Errorf("upstream%w", err)
	}
	if err := cfg.Serialization.VerifyConfig(); err != nil {
		return fmt.Errorf("serialization%w", err)
	}
	if cfg.MaxBufferSize < defs.SinkMinBufferCapacity {
		return fmt.Errorf(".maxBufferSize: %w: %d is less than the minimum %d", base.ErrInvalidConfiguration,
			cfg.MaxBufferSize, defs.SinkMinBufferCapacity)
	}
	if cfg.BufferingCount < 0 {
		return fmt.Errorf(".bufferingCount: %w: negative count %d", base.ErrInvalidConfiguration, cfg.BufferingCount)
	}
	if cfg.BufferingCount > cfg.MaxBufferSize {
		return fmt.Errorf(".bufferingCount: %w: %d exceeds maxBufferSize %d and would never be reached", base.ErrInvalidConfiguration,
			cfg.BufferingCount, cfg.MaxBufferSize)
	}
	if cfg.BufferingCount == 0 && cfg.BufferingInterval <= 0 {
		return fmt.Errorf(".bufferingInterval: %w: both interval and count triggers are disabled", base.ErrInvalidConfiguration)
	}
	if cfg.OnCompletedTimeout != nil && *cfg.OnCompletedTimeout < 0 {
		return fmt.Errorf(".onCompletedTimeout: %w: negative duration %s", base.ErrInvalidConfiguration, *cfg.OnCompletedTimeout)
	}
	return nil
}
