package util

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetYamlLocation fetches a descriptive location of YAML node
func GetYamlLocation(node *yaml.Node) string {
	var title string
	switch {
	case len(node.HeadComment) > 0:
		title = " " + node.HeadComment
	case len(node.Anchor) > 0:
		title = " " + node.Anchor
	default:
		title = ""
	}
	return fmt.Sprintf("yaml line %d:%d%s", node.Line, node.Column, title)
}

// NewYamlError creates a new error with location information of YAML node
func NewYamlError(node *yaml.Node, message string) error {
	return fmt.Errorf("yaml line %d:%d: %s", node.Line, node.Column, message)
}

// UnmarshalYamlReader loads and unmarshals YAML from IO reader to interface or pointer to struct
func UnmarshalYamlReader(reader io.Reader, output interface{}) error {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true) // only works outside of custom unmarshalers
	return decoder.Decode(output)
}

// UnmarshalYamlString loads and unmarshals YAML in string to interface or pointer to struct
func UnmarshalYamlString(contents string, output interface{}) error {
	reader := strings.NewReader(contents)
	return UnmarshalYamlReader(reader, output)
}

// DecodeYamlNodeKnownFields is yaml.Node.Decode with unknown fields disallowed
//
// Custom unmarshalers don't inherit KnownFields from the top-level decoder; the node is re-encoded and decoded again
// by a strict decoder, so line numbers in errors are relative to the node.
func DecodeYamlNodeKnownFields(node *yaml.Node, output interface{}) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return UnmarshalYamlReader(bytes.NewReader(data), output)
}
