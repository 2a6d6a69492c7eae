package elasticbulk

import (
	"github.com/relex/bulk-sink/base"
)

// PayloadPacker serializes batches into one or more bulk payloads bounded by an uncompressed size limit
type PayloadPacker struct {
	serializer  *EventSerializer
	idGenerator *payloadIDGenerator
	maxBytes    int
}

// NewPayloadPacker creates a PayloadPacker; maxBytes <= 0 disables splitting
func NewPayloadPacker(serializer *EventSerializer, maxBytes int) *PayloadPacker {
	return &PayloadPacker{
		serializer:  serializer,
		idGenerator: newPayloadIDGenerator(),
		maxBytes:    maxBytes,
	}
}

// Serializer returns the underlying EventSerializer
func (packer *PayloadPacker) Serializer() *EventSerializer {
	return packer.serializer
}

// Pack serializes the entries in order and splits the result in halves until each part fits the size limit
//
// A single entry exceeding the limit is returned as its own payload. Entry order is kept across payloads.
func (packer *PayloadPacker) Pack(entries []*base.StructuredEntry) ([]base.BulkPayload, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	data, err := packer.serializer.Serialize(entries)
	if err != nil {
		return nil, err
	}
	return packer.split(entries, data, make([]base.BulkPayload, 0, 1))
}

func (packer *PayloadPacker) split(entries []*base.StructuredEntry, data []byte, result []base.BulkPayload) ([]base.BulkPayload, error) {
	if packer.maxBytes <= 0 || len(data) <= packer.maxBytes || len(entries) == 1 {
		return append(result, base.BulkPayload{
			ID:         packer.idGenerator.Generate(),
			Data:       data,
			NumEntries: len(entries),
		}), nil
	}
	middle := len(entries) / 2
	for _, part := range [][]*base.StructuredEntry{entries[:middle], entries[middle:]} {
		partData, err := packer.serializer.Serialize(part)
		if err != nil {
			return nil, err
		}
		if result, err = packer.split(part, partData, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}
