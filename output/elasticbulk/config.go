package elasticbulk

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
)

// SerializationConfig configures how entries are turned into bulk action/document pairs
type SerializationConfig struct {
	IndexPrefix         string            `yaml:"indexPrefix"`         // final index name is {prefix}-{yyyy.MM.dd}
	EntryType           string            `yaml:"entryType"`           // "_type" in action headers, omitted if empty
	InstanceName        string            `yaml:"instanceName"`        // constant InstanceName field of all documents
	FlattenPayload      bool              `yaml:"flattenPayload"`      // true: Payload_{name} at top level; false: nested "Payload" object
	GlobalContext       map[string]string `yaml:"globalContext"`       // Context_{key} fields added to all documents
	HiddenPayloadFields []string          `yaml:"hiddenPayloadFields"` // glob patterns of payload names to exclude
}

// UpstreamConfig configures the remote bulk-ingest endpoint
type UpstreamConfig struct {
	Endpoint       string            `yaml:"endpoint"`       // base URL, "/_bulk" is appended
	Username       string            `yaml:"username"`       // HTTP basic auth, disabled if empty
	Password       string            `yaml:"password"`       //
	RequestTimeout time.Duration     `yaml:"requestTimeout"` // timeout of one bulk request including response
	Compress       bool              `yaml:"compress"`       // gzip request bodies
	MaxPayloadSize datasize.ByteSize `yaml:"maxPayloadSize"` // max uncompressed body size before splitting
}

// NewSerializationConfig creates a SerializationConfig with defaults
func NewSerializationConfig() SerializationConfig {
	return SerializationConfig{
		IndexPrefix:         "",
		EntryType:           defs.DefaultEntryType,
		InstanceName:        "",
		FlattenPayload:      true,
		GlobalContext:       nil,
		HiddenPayloadFields: nil,
	}
}

// NewUpstreamConfig creates an UpstreamConfig with defaults
func NewUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Endpoint:       "",
		Username:       "",
		Password:       "",
		RequestTimeout: defs.TransportRequestTimeout,
		Compress:       false,
		MaxPayloadSize: datasize.ByteSize(defs.TransportDefaultMaxPayloadBytes),
	}
}

// VerifyConfig checks the endpoint and the timeout
func (cfg *UpstreamConfig) VerifyConfig() error {
	if _, err := ParseEndpoint(cfg.Endpoint); err != nil {
		return fmt.Errorf(".endpoint: %w", err)
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf(".requestTimeout: %w: negative duration %s", base.ErrInvalidConfiguration, cfg.RequestTimeout)
	}
	return nil
}

// VerifyConfig checks the index prefix
func (cfg *SerializationConfig) VerifyConfig() error {
	if err := VerifyIndexPrefix(cfg.IndexPrefix); err != nil {
		return fmt.Errorf(".indexPrefix: %w", err)
	}
	return nil
}

// ParseEndpoint parses the base URL of the remote endpoint
//
// Only absolute http(s) URLs with a host are accepted.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is unspecified", base.ErrMissingConfiguration)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", base.ErrMalformedEndpoint, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme '%s' in '%s'", base.ErrMalformedEndpoint, u.Scheme, endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no host in '%s'", base.ErrMalformedEndpoint, endpoint)
	}
	return u, nil
}

// disallowedIndexChars are rejected by the remote engine in index names, space included
const disallowedIndexChars = `\/ ,"*?|<>`

// VerifyIndexPrefix checks the prefix can be used as part of index names
//
// Uppercase letters are rejected because the remote engine lower-cases index names.
func VerifyIndexPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: index prefix is unspecified", base.ErrMissingConfiguration)
	}
	if i := strings.IndexAny(prefix, disallowedIndexChars); i != -1 {
		return fmt.Errorf("%w: index prefix '%s' contains '%c'", base.ErrInvalidIdentifier, prefix, prefix[i])
	}
	if strings.ToLower(prefix) != prefix {
		return fmt.Errorf("%w: index prefix '%s' contains uppercase letters", base.ErrInvalidIdentifier, prefix)
	}
	return nil
}
