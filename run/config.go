package run

import (
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/relex/bulk-sink/base/bconfig"
	"github.com/relex/bulk-sink/diagnostics"
	"github.com/relex/bulk-sink/sink"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
)

// Config defines the root of bulk-sink config file
type Config struct {
	Sink        sink.Config                       `yaml:"sink"`
	Diagnostics []bconfig.DiagnosticsConfigHolder `yaml:"diagnostics"`
}

// EnvOverrides defines environment variables which take precedence over the config file
//
// Credentials are usually given here instead of in config files
type EnvOverrides struct {
	Endpoint    string `env:"BULKSINK_ENDPOINT"`
	Username    string `env:"BULKSINK_USERNAME"`
	Password    string `env:"BULKSINK_PASSWORD"`
	IndexPrefix string `env:"BULKSINK_INDEX_PREFIX"`
}

// LoadConfigFile loads config from the path, applies environment overrides and verifies everything
func LoadConfigFile(filepath string) (*Config, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadConfigReader(file)
}

// LoadConfigReader is LoadConfigFile from reader
func LoadConfigReader(reader io.Reader) (*Config, error) {
	cref := &Config{
		Sink:        sink.NewConfig(),
		Diagnostics: nil,
	}
	if err := util.UnmarshalYamlReader(reader, cref); err != nil {
		return nil, err
	}
	if err := cref.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if cref.Sink.Serialization.InstanceName == "" {
		hostname, herr := os.Hostname()
		if herr != nil {
			return nil, fmt.Errorf("sink.serialization.instanceName is unspecified and failed to get hostname: %w", herr)
		}
		cref.Sink.Serialization.InstanceName = hostname
	}
	if err := cref.Sink.VerifyConfig(); err != nil {
		return nil, fmt.Errorf("sink.%w", err)
	}
	for i, holder := range cref.Diagnostics {
		if err := holder.Value.VerifyConfig(); err != nil {
			return nil, fmt.Errorf("diagnostics[%d]%w", i, err)
		}
	}
	return cref, nil
}

func (cref *Config) applyEnvOverrides() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to load .env: %s", err.Error())
	}
	overrides := EnvOverrides{}
	if err := env.Parse(&overrides); err != nil {
		return err
	}
	if overrides.Endpoint != "" {
		cref.Sink.Upstream.Endpoint = overrides.Endpoint
	}
	if overrides.Username != "" {
		cref.Sink.Upstream.Username = overrides.Username
	}
	if overrides.Password != "" {
		cref.Sink.Upstream.Password = overrides.Password
	}
	if overrides.IndexPrefix != "" {
		cref.Sink.Serialization.IndexPrefix = overrides.IndexPrefix
	}
	return nil
}

// DeadLetterPath returns the path of the first dead-letter directory in diagnostics, or empty if none
func (cref *Config) DeadLetterPath() string {
	for _, holder := range cref.Diagnostics {
		if dlc, ok := holder.Value.(*diagnostics.DeadLetterConfig); ok {
			return dlc.Path
		}
	}
	return ""
}
