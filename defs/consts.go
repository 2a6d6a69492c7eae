package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelSource    = "source"
	LabelPath      = "path"
	LabelRemote    = "remote"
	LabelBatch     = "batch"
)

// Fixed names in the bulk wire format and in serialized documents
const (
	BulkPath = "_bulk"

	ContextFieldPrefix  = "Context_"
	PayloadFieldPrefix  = "Payload_"
	PayloadNestedField  = "Payload"
	ReservedPayloadName = "_jsonPayload"
	PayloadExtField     = "PayloadExt"
	IndexDateLayout     = "2006.01.02"
	DefaultEntryType    = "etw"
	BulkContentType     = "application/x-ndjson"
	GzipContentEncoding = "gzip"
	DeadLetterFileExt   = ".ndjson"
	DeadLetterKindXattr = "user.bulksink.kind"
)
