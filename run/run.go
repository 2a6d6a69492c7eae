// Package run runs the bulk sink fed by NDJSON input
package run

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/buffer/batchbuffer"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/diagnostics"
	"github.com/relex/bulk-sink/input/ndjson"
	"github.com/relex/bulk-sink/sink"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// StdinInput is the input pattern to read from standard input
const StdinInput = "-"

// Summary is the result of Run
type Summary struct {
	Entries  int   // entries read from input
	Invalid  int   // invalid input lines
	Dropped  int64 // entries dropped by sink
	Failed   int   // entries not accepted by remote
	Streams  int   // input streams fully read
	Canceled bool  // stopped by signal before end of input
}

// Run loads the config, then reads all entries from inputs matching the pattern into a sink until the end of input or
// SIGINT/SIGTERM, and finally closes the sink
func Run(configFile string, inputPattern string) (Summary, error) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, "bulksink_")
	if loaderErr != nil {
		return Summary{}, loaderErr
	}
	return loader.Run(inputPattern)
}

// Run runs the sink with inputs matching the pattern, see Run
func (loader *Loader) Run(inputPattern string) (Summary, error) {
	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	var inputPaths []string
	if inputPattern != StdinInput {
		paths, lerr := util.ListFiles(inputPattern)
		if lerr != nil {
			return Summary{}, fmt.Errorf("input: %w", lerr)
		}
		if len(paths) == 0 {
			return Summary{}, fmt.Errorf("input: no file matches '%s'", inputPattern)
		}
		inputPaths = paths
	}

	s, emitter, serr := loader.LaunchSink(logger.Root())
	if serr != nil {
		return Summary{}, serr
	}

	stopRequest := channels.NewSignalAwaitable()
	stopSignalWatcher := watchStopSignals(runLogger, stopRequest)
	defer stopSignalWatcher()

	summary := Summary{}
	summaryLock := &sync.Mutex{}
	addStream := func(result ndjson.ReadResult, err error) {
		summaryLock.Lock()
		defer summaryLock.Unlock()
		summary.addStream(result, err)
	}
	inputDone := channels.NewSignalAwaitable()
	reader := ndjson.NewEntryReader(logger.Root(), loader.MetricFactory)
	go func() {
		defer inputDone.Signal()
		enqueue := func(entry *base.StructuredEntry) { enqueueWithBackpressure(s, entry, stopRequest) }
		if inputPaths == nil {
			addStream(readStream(runLogger, reader, "stdin", os.Stdin, stopRequest, enqueue))
			return
		}
		for _, path := range inputPaths {
			if stopRequest.Peek() {
				return
			}
			addStream(readFile(runLogger, reader, path, stopRequest, enqueue))
		}
	}()

	select {
	case <-inputDone.Channel():
		runLogger.Infof("end of input")
	case <-stopRequest.Channel():
		// reading from stdin may block forever; the reader is abandoned after closing the sink
		if !inputDone.Wait(defs.InputStopTimeout) {
			runLogger.Warnf("input reading not stopped in time")
		}
	}

	closeErr := s.Close()
	if err := diagnostics.CloseEmitter(emitter); err != nil {
		runLogger.Warnf("failed to close diagnostics: %s", err.Error())
	}
	summaryLock.Lock()
	defer summaryLock.Unlock()
	summary.Canceled = stopRequest.Peek()
	summary.Dropped = s.DroppedCount()
	summary.Failed = int(util.SumMetricValues(loader.MetricFactory.AddOrGetPrefix("output_", []string{"output"}, []string{"elasticBulk"}).
		AddOrGetCounterVec("failed_entries_total", "", []string{"outcome"}, nil)))
	runLogger.Infof("summary: entries=%d invalid=%d dropped=%d failed=%d", summary.Entries, summary.Invalid, summary.Dropped, summary.Failed)
	if closeErr != nil {
		return summary, closeErr
	}
	runLogger.Info("clean exit")
	return summary, nil
}

// ResendDeadLetters resends payloads saved in the dead-letter directory of the config file
func ResendDeadLetters(configFile string) (diagnostics.ResendResult, error) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, "bulksink_")
	if loaderErr != nil {
		return diagnostics.ResendResult{}, loaderErr
	}
	path := loader.DeadLetterPath()
	if path == "" {
		return diagnostics.ResendResult{}, fmt.Errorf("diagnostics: %w: no deadLetter configured", base.ErrMissingConfiguration)
	}
	transport, terr := loader.NewTransport(logger.Root())
	if terr != nil {
		return diagnostics.ResendResult{}, terr
	}
	return diagnostics.ResendDeadLetters(logger.Root(), path, transport)
}

func (summary *Summary) addStream(result ndjson.ReadResult, err error) {
	summary.Entries += result.Entries
	summary.Invalid += result.Invalid
	if err == nil {
		summary.Streams++
	}
}

func readFile(runLogger logger.Logger, reader *ndjson.EntryReader, path string, stopRequest channels.Awaitable,
	consume func(entry *base.StructuredEntry)) (ndjson.ReadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		runLogger.Errorf("failed to open input '%s': %s", path, err.Error())
		inputFailureCounter.Inc()
		return ndjson.ReadResult{}, err
	}
	defer file.Close()
	return readStream(runLogger, reader, path, file, stopRequest, consume)
}

func readStream(runLogger logger.Logger, reader *ndjson.EntryReader, source string, input io.Reader, stopRequest channels.Awaitable,
	consume func(entry *base.StructuredEntry)) (ndjson.ReadResult, error) {
	result, err := reader.Read(source, input, stopRequest, consume)
	if err != nil {
		runLogger.Errorf("aborted input '%s': %s", source, err.Error())
		inputFailureCounter.Inc()
		return result, err
	}
	runLogger.Infof("read input '%s': entries=%d invalid=%d", source, result.Entries, result.Invalid)
	inputSuccessCounter.Inc()
	return result, nil
}

// enqueueWithBackpressure waits for room in the sink buffer before enqueueing, so that reading files faster than the
// upstream accepts them doesn't overflow the buffer
//
// The entry is only dropped if the run is stopping or the sink is no longer open. Returns true if accepted.
func enqueueWithBackpressure(s *sink.Sink, entry *base.StructuredEntry, stopRequest channels.Awaitable) bool {
	for {
		stats := s.Stats()
		if stats.State != batchbuffer.StateOpen || stats.Buffered < stats.Capacity || stopRequest.Peek() {
			return s.Enqueue(entry)
		}
		s.Flush().Wait(defs.InputBackpressureWait)
	}
}

// watchStopSignals signals stopRequest on SIGINT or SIGTERM, until the returned function is called
func watchStopSignals(runLogger logger.Logger, stopRequest *channels.SignalAwaitable) func() {
	sigChan := make(chan os.Signal, 10)
	signal.Notify(sigChan, syscall.SIGINT)
	signal.Notify(sigChan, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case s := <-sigChan:
			runLogger.Infof("received %s, shutting down", s)
			stopRequest.Signal()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

var _ base.PipelineWorker = (*sink.Sink)(nil)
