// Package bconfig provides YAML holders for configuration of pluggable components, selected by their "type"
package bconfig

import (
	"fmt"
	"reflect"

	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
	"gopkg.in/yaml.v3"
)

// BaseConfig contains basic properties required for all Config types
type BaseConfig interface {
	// GetType returns the type name
	GetType() string
}

// Header defines the common parts of *Config implementations, to be inlined
type Header struct {
	Type string `yaml:"type"`
}

// GetType returns the type name
func (header *Header) GetType() string {
	return header.Type
}

// ConfigHolder holds an interface to the actual Config, whose implementation is chosen by the "type" property
type ConfigHolder[C BaseConfig] struct {
	Location string `yaml:"-"`
	Value    C
}

func (holder ConfigHolder[C]) String() string {
	return fmt.Sprint(holder.Value)
}

// MarshalYAML exports the inner config. The result is not reversible.
func (holder ConfigHolder[C]) MarshalYAML() (interface{}, error) {
	return holder.Value, nil
}

// UnmarshalYAML creates the registered Config for the "type" and decodes the rest into it, rejecting unknown fields
func (holder *ConfigHolder[C]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return util.NewYamlError(value, "expected a mapping with .type")
	}
	typeName, found := findMappingValue(value, "type")
	if !found {
		return util.NewYamlError(value, ".type is undefined")
	}

	createFunc, supported := getConfigConstructors[C]()[typeName]
	if !supported {
		return util.NewYamlError(value, fmt.Sprintf(".type: unsupported '%s'", typeName))
	}
	config := createFunc()
	if err := util.DecodeYamlNodeKnownFields(value, config); err != nil {
		return util.NewYamlError(value, err.Error())
	}
	holder.Value = config
	holder.Location = util.GetYamlLocation(value)
	return nil
}

func findMappingValue(mapping *yaml.Node, key string) (string, bool) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return mapping.Content[i+1].Value, true
		}
	}
	return "", false
}

// ConfigCreatorTable provides a map of config types to their constructors, which fill defaults
type ConfigCreatorTable[C BaseConfig] map[string]func() C

var typeToConfigCreatorTables = make(map[string]interface{})

// RegisterConfigConstructors registers the list of config constructors for a particular config type
//
// It can only be called once for each type C, normally from init()
func RegisterConfigConstructors[C BaseConfig](newMap ConfigCreatorTable[C]) {
	c := reflect.TypeOf((*C)(nil)).Elem()
	if _, exists := typeToConfigCreatorTables[c.String()]; exists {
		logger.Panicf("already registered %s", c.String())
	}
	typeToConfigCreatorTables[c.String()] = newMap
}

func getConfigConstructors[C BaseConfig]() ConfigCreatorTable[C] {
	c := reflect.TypeOf((*C)(nil)).Elem()
	table, exists := typeToConfigCreatorTables[c.String()]
	if !exists {
		logger.Panicf("not registered %s", c.String())
	}
	return table.(ConfigCreatorTable[C])
}
