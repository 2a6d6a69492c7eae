package elasticbulk

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

const gzipCompressionLevel = gzip.BestSpeed

// gzipCompress compresses the whole request body into a new buffer
func gzipCompress(data []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, len(data)/4+64))
	writer, err := gzip.NewWriterLevel(buffer, gzipCompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buffer.Bytes(), nil
}
