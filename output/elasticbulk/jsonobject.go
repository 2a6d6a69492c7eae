package elasticbulk

import (
	"bytes"
	"encoding/json"
)

// jsonObject builds a JSON object with fields kept in insertion order
//
// Setting an existing key replaces its value in place, so the last write wins without reordering.
type jsonObject struct {
	keys   []string
	values map[string][]byte
}

func newJSONObject(capacity int) *jsonObject {
	return &jsonObject{
		keys:   make([]string, 0, capacity),
		values: make(map[string][]byte, capacity),
	}
}

// setRaw sets a pre-encoded JSON value
func (obj *jsonObject) setRaw(key string, raw []byte) {
	if _, exists := obj.values[key]; !exists {
		obj.keys = append(obj.keys, key)
	}
	obj.values[key] = raw
}

// set encodes and sets a value
func (obj *jsonObject) set(key string, value interface{}) error {
	raw, err := marshalJSON(value)
	if err != nil {
		return err
	}
	obj.setRaw(key, raw)
	return nil
}

func (obj *jsonObject) len() int {
	return len(obj.keys)
}

func (obj *jsonObject) writeTo(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, key := range obj.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := marshalJSON(key)
		if err != nil {
			return err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(obj.values[key])
	}
	buf.WriteByte('}')
	return nil
}

func (obj *jsonObject) bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := obj.writeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// marshalJSON encodes the value as compact JSON without HTML escaping
func marshalJSON(value interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
