// Package ndjson reads StructuredEntry values from newline-delimited JSON streams
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// EntryReader parses one JSON object per line into StructuredEntry
//
// Invalid lines are logged and skipped. Numbers in payload values are kept as json.Number so they're re-encoded
// exactly as read.
type EntryReader struct {
	logger  logger.Logger
	metrics readerMetrics
}

// ReadResult summarizes one input stream
type ReadResult struct {
	Entries int // parsed entries
	Invalid int // skipped lines
}

type readerMetrics struct {
	entriesTotal      promext.RWCounter
	invalidLinesTotal promext.RWCounter
	bytesTotal        promext.RWCounter
}

// NewEntryReader creates an EntryReader
func NewEntryReader(parentLogger logger.Logger, metricCreator promreg.MetricCreator) *EntryReader {
	inputMetricCreator := metricCreator.AddOrGetPrefix("input_", []string{"input"}, []string{"ndjson"})
	return &EntryReader{
		logger: parentLogger.WithField(defs.LabelComponent, "NDJSONReader"),
		metrics: readerMetrics{
			entriesTotal:      inputMetricCreator.AddOrGetCounter("entries_total", "Numbers of parsed input entries", nil, nil),
			invalidLinesTotal: inputMetricCreator.AddOrGetCounter("invalid_lines_total", "Numbers of skipped input lines", nil, nil),
			bytesTotal:        inputMetricCreator.AddOrGetCounter("bytes_total", "Total length in bytes of input lines", nil, nil),
		},
	}
}

// Read parses entries from input until EOF or stopRequest, passing them in order to consume
//
// Lines longer than defs.InputLogMaxMessageBytes abort the stream with error.
func (reader *EntryReader) Read(source string, input io.Reader, stopRequest channels.Awaitable, consume func(entry *base.StructuredEntry)) (ReadResult, error) {
	sourceLogger := reader.logger.WithField(defs.LabelSource, source)
	result := ReadResult{}
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), defs.InputLogMaxMessageBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		reader.metrics.bytesTotal.Add(uint64(len(line)))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			sourceLogger.Warnf("skip invalid line %d: %s", lineNum, err.Error())
			reader.metrics.invalidLinesTotal.Inc()
			result.Invalid++
			continue
		}
		reader.metrics.entriesTotal.Inc()
		result.Entries++
		consume(entry)
		if stopRequest.Peek() {
			sourceLogger.Infof("stop reading at line %d", lineNum)
			return result, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("line %d: %w", lineNum+1, err)
	}
	return result, nil
}

// ParseEntry parses one entry from JSON
func ParseEntry(data []byte) (*base.StructuredEntry, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	entry := &base.StructuredEntry{}
	if err := decoder.Decode(entry); err != nil {
		return nil, err
	}
	if decoder.More() {
		return nil, fmt.Errorf("trailing data after entry")
	}
	if entry.Timestamp.IsZero() {
		return nil, fmt.Errorf("missing timestamp")
	}
	for i, field := range entry.Payload {
		if field.Name == "" {
			return nil, fmt.Errorf("payload[%d]: missing name", i)
		}
	}
	return entry, nil
}
