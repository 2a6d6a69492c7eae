package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/xattr"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// DeadLetterEmitter saves the payloads of failed batches into a directory, to be resent later
//
// Each payload is saved as "{payloadID}.ndjson", with the kind of failure in an extended attribute. Events without
// payload are ignored. Failures of saving are logged and never passed back to the dispatcher.
type DeadLetterEmitter struct {
	logger  logger.Logger
	path    string
	dir     *os.File
	metrics emitterMetrics
}

// NewDeadLetterEmitter creates the directory if needed and opens it for writing
func NewDeadLetterEmitter(parentLogger logger.Logger, path string, metricCreator promreg.MetricCreator) (*DeadLetterEmitter, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dead-letter dir: %w", err)
	}
	dir, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter dir: %w", err)
	}
	return &DeadLetterEmitter{
		logger:  parentLogger.WithFields(logger.Fields{defs.LabelComponent: "DeadLetterSaver", defs.LabelPath: path}),
		path:    path,
		dir:     dir,
		metrics: newEmitterMetrics(metricCreator, "deadLetter"),
	}, nil
}

// Emit saves the payload of the event, if any
func (emitter *DeadLetterEmitter) Emit(event base.DiagnosticEvent) {
	emitter.metrics.onEvent(event)
	if event.Payload == nil || len(event.Payload.Data) == 0 {
		return
	}
	filename := event.Payload.ID + defs.DeadLetterFileExt
	if err := util.WriteFileAt(emitter.dir, filename, event.Payload.Data, 0o644); err != nil {
		emitter.metrics.errorsTotal.Inc()
		emitter.logger.Errorf("failed to save %s: %s", event.Payload.String(), err.Error())
		return
	}
	path := filepath.Join(emitter.path, filename)
	if err := xattr.Set(path, defs.DeadLetterKindXattr, []byte(event.Kind)); err != nil {
		// the payload is saved anyway and can still be resent
		emitter.logger.Warnf("failed to label kind on %s: %s", path, err.Error())
	}
	emitter.logger.Debugf("saved %s as %s", event.Payload.String(), filename)
}

// Close closes the directory
func (emitter *DeadLetterEmitter) Close() error {
	return emitter.dir.Close()
}
