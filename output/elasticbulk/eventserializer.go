package elasticbulk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// fixedDocumentFields is the count of fields present in every document
const fixedDocumentFields = 15

// EventSerializer turns entries into the bulk wire format: one action header line and one document line per entry
//
// Options are fixed at construction. Serialize keeps no state between calls and may be called concurrently.
type EventSerializer struct {
	logger         logger.Logger
	indexPrefix    string
	entryType      string
	instanceName   string
	flattenPayload bool
	contextKeys    []string          // sorted Context_{key} field names
	contextValues  map[string][]byte // pre-encoded values by field name
	hiddenFields   []glob.Glob
}

type bulkAction struct {
	Index bulkActionTarget `json:"index"`
}

type bulkActionTarget struct {
	Index string `json:"_index"`
	Type  string `json:"_type,omitempty"`
}

// NewEventSerializer creates an EventSerializer
//
// The global context is copied; later changes to the given map are not reflected.
func NewEventSerializer(parentLogger logger.Logger, config SerializationConfig) (*EventSerializer, error) {
	hiddenFields := make([]glob.Glob, 0, len(config.HiddenPayloadFields))
	for i, pattern := range config.HiddenPayloadFields {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf(".hiddenPayloadFields[%d]: %w", i, err)
		}
		hiddenFields = append(hiddenFields, g)
	}

	contextKeys := make([]string, 0, len(config.GlobalContext))
	contextValues := make(map[string][]byte, len(config.GlobalContext))
	sortedKeys := maps.Keys(config.GlobalContext)
	slices.Sort(sortedKeys)
	for _, key := range sortedKeys {
		raw, err := marshalJSON(config.GlobalContext[key])
		if err != nil {
			return nil, fmt.Errorf(".globalContext[%s]: %w", key, err)
		}
		fieldName := defs.ContextFieldPrefix + key
		contextKeys = append(contextKeys, fieldName)
		contextValues[fieldName] = raw
	}

	return &EventSerializer{
		logger:         parentLogger.WithField(defs.LabelComponent, "BulkEventSerializer"),
		indexPrefix:    config.IndexPrefix,
		entryType:      config.EntryType,
		instanceName:   config.InstanceName,
		flattenPayload: config.FlattenPayload,
		contextKeys:    contextKeys,
		contextValues:  contextValues,
		hiddenFields:   hiddenFields,
	}, nil
}

// IndexName returns the name of the index for the given entry, dated by the entry's own timestamp in UTC
func (ser *EventSerializer) IndexName(entry *base.StructuredEntry) string {
	return ser.indexPrefix + "-" + entry.Timestamp.UTC().Format(defs.IndexDateLayout)
}

// Serialize serializes entries into newline-delimited JSON, two lines per entry in the given order
//
// A nil input returns nil and an empty input returns an empty non-nil slice, both without error. Any encoding error aborts the whole call without partial output.
func (ser *EventSerializer) Serialize(entries []*base.StructuredEntry) ([]byte, error) {
	if entries == nil {
		return nil, nil
	}
	if len(entries) == 0 {
		return []byte{}, nil
	}
	buf := &bytes.Buffer{}
	for i, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("entry[%d]: nil entry", i)
		}
		if err := ser.writeEntry(buf, entry); err != nil {
			return nil, fmt.Errorf("entry[%d] id=%d: %w", i, entry.EventID, err)
		}
	}
	return buf.Bytes(), nil
}

func (ser *EventSerializer) writeEntry(buf *bytes.Buffer, entry *base.StructuredEntry) error {
	header, herr := marshalJSON(bulkAction{
		Index: bulkActionTarget{
			Index: ser.IndexName(entry),
			Type:  ser.entryType,
		},
	})
	if herr != nil {
		return fmt.Errorf("action header: %w", herr)
	}

	doc, derr := ser.buildDocument(entry)
	if derr != nil {
		return derr
	}

	// write only after the document is fully built, so a failure leaves nothing of this entry
	buf.Write(header)
	buf.WriteByte('\n')
	if err := doc.writeTo(buf); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return nil
}

func (ser *EventSerializer) buildDocument(entry *base.StructuredEntry) (*jsonObject, error) {
	doc := newJSONObject(fixedDocumentFields + len(ser.contextKeys) + len(entry.Payload) + 3)

	fixedFields := []struct {
		name  string
		value interface{}
	}{
		{"EventId", entry.EventID},
		{"EventName", entry.EventName},
		{"EventDate", entry.Timestamp.UTC().Format(time.RFC3339Nano)},
		{"Keywords", entry.Keywords},
		{"ProviderId", entry.ProviderID},
		{"ProviderName", entry.ProviderName},
		{"InstanceName", ser.instanceName},
		{"Level", int(entry.Level)},
		{"LevelName", entry.Level.String()},
		{"Message", entry.Message},
		{"Opcode", entry.Opcode},
		{"Task", entry.Task},
		{"Version", entry.Version},
		{"ProcessId", entry.ProcessID},
		{"ThreadId", entry.ThreadID},
	}
	for _, field := range fixedFields {
		if err := doc.set(field.name, field.value); err != nil {
			return nil, fmt.Errorf("field %s: %w", field.name, err)
		}
	}
	if entry.ActivityID.Valid {
		if err := doc.set("ActivityId", entry.ActivityID.UUID.String()); err != nil {
			return nil, err
		}
	}
	if entry.RelatedActivityID.Valid {
		if err := doc.set("RelatedActivityId", entry.RelatedActivityID.UUID.String()); err != nil {
			return nil, err
		}
	}

	for _, key := range ser.contextKeys {
		doc.setRaw(key, ser.contextValues[key])
	}

	var nested *jsonObject
	if !ser.flattenPayload {
		nested = newJSONObject(len(entry.Payload))
	}
	var extension []byte
	for _, field := range entry.Payload {
		if field.Name == defs.ReservedPayloadName {
			if s, ok := field.Value.(string); ok && s != "" {
				extension = []byte(s)
			}
			continue
		}
		if ser.isHidden(field.Name) {
			continue
		}
		raw, err := marshalJSON(field.Value)
		if err != nil {
			return nil, fmt.Errorf("payload '%s': %w", field.Name, err)
		}
		if nested != nil {
			nested.setRaw(field.Name, raw)
		} else {
			doc.setRaw(defs.PayloadFieldPrefix+field.Name, raw)
		}
	}
	if nested != nil && nested.len() > 0 {
		raw, err := nested.bytes()
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		doc.setRaw(defs.PayloadNestedField, raw)
	}
	if extension != nil {
		switch {
		case !json.Valid(extension):
			// not a JSON fragment: keep it as a plain string so the document stays valid
			raw, err := marshalJSON(string(extension))
			if err != nil {
				return nil, fmt.Errorf("payload '%s': %w", defs.ReservedPayloadName, err)
			}
			extension = raw
		case bytes.ContainsAny(extension, "\r\n"):
			// line breaks would split the document in the line-delimited wire format
			compacted := &bytes.Buffer{}
			if err := json.Compact(compacted, extension); err != nil {
				return nil, fmt.Errorf("payload '%s': %w", defs.ReservedPayloadName, err)
			}
			extension = compacted.Bytes()
		}
		doc.setRaw(defs.PayloadExtField, extension)
	}
	return doc, nil
}

func (ser *EventSerializer) isHidden(name string) bool {
	for _, g := range ser.hiddenFields {
		if g.Match(name) {
			return true
		}
	}
	return false
}
