package diagnostics

import (
	"errors"
	"io"

	"github.com/relex/bulk-sink/base"
)

// MultiEmitter forwards each event to all its members in order
type MultiEmitter []base.DiagnosticsEmitter

// Emit forwards the event
func (multi MultiEmitter) Emit(event base.DiagnosticEvent) {
	for _, emitter := range multi {
		emitter.Emit(event)
	}
}

// Close closes all members holding resources
func (multi MultiEmitter) Close() error {
	var errs []error
	for _, emitter := range multi {
		if err := CloseEmitter(emitter); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseEmitter closes the emitter if it implements io.Closer
func CloseEmitter(emitter base.DiagnosticsEmitter) error {
	if closer, ok := emitter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
