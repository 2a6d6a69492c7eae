package sink

import (
	"fmt"
	"time"

	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/buffer/batchbuffer"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/util"
)

// run is the coordinator loop: all triggers are handled here one by one, so at most one batch is in flight
func (s *Sink) run() {
	defer s.stopped.Signal()

	var tickerChan <-chan time.Time
	if s.config.BufferingInterval > 0 {
		ticker := time.NewTicker(s.config.BufferingInterval)
		defer ticker.Stop()
		tickerChan = ticker.C
	}
	closeChan := s.closeRequest.Channel()
	var lastReportedDrops int64

	s.logger.Infof("start: interval=%s count=%d capacity=%d", s.config.BufferingInterval, s.config.BufferingCount, s.config.MaxBufferSize)
	for {
		select {
		case <-tickerChan:
			s.dispatchPending()
		case <-s.buffer.SizeSignal():
			s.dispatchFullBatches()
		case <-s.flushSignal:
			s.dispatchPending()
		case <-closeChan:
			s.dispatchAll()
			s.reportDrops(&lastReportedDrops)
			s.logger.Infof("stop")
			return
		}
		s.reportDrops(&lastReportedDrops)
	}
}

// dispatchPending dispatches the entries buffered at the moment of the trigger, in one or more batches
func (s *Sink) dispatchPending() {
	pending := s.buffer.Len()
	for pending > 0 {
		limit := s.config.BufferingCount
		if limit <= 0 || limit > pending {
			limit = pending
		}
		if !s.drainAndDispatch(limit) {
			return
		}
		pending -= limit
	}
}

// dispatchFullBatches dispatches batches as long as the buffered count reaches the size trigger
func (s *Sink) dispatchFullBatches() {
	for s.config.BufferingCount > 0 && s.buffer.Len() >= s.config.BufferingCount {
		if !s.drainAndDispatch(s.config.BufferingCount) {
			return
		}
	}
}

// dispatchAll dispatches until the buffer is empty or closed; no new entries may come in while closing
func (s *Sink) dispatchAll() {
	for s.drainAndDispatch(s.config.BufferingCount) {
	}
}

// drainAndDispatch returns false if there was nothing to drain or the buffer has been closed
func (s *Sink) drainAndDispatch(limit int) bool {
	if s.buffer.State() == batchbuffer.StateClosed {
		return false
	}
	batch, lastSeq := s.buffer.Drain(limit)
	if len(batch) == 0 {
		return false
	}
	s.dispatch(batch, lastSeq)
	return true
}

// dispatch serializes and sends one batch. The batch is settled in any case, including panics.
func (s *Sink) dispatch(batch []*base.StructuredEntry, lastSeq uint64) {
	defer s.buffer.Settle(lastSeq)
	defer func() {
		if r := recover(); r != nil {
			s.metrics.dispatchPanicsTotal.Inc()
			s.logger.Errorf("BUG: panic in dispatching %d entries: %v\n%s", len(batch), r, util.Stack())
			s.emit(base.DiagnosticEvent{
				Kind:       base.DiagnosticDispatchPanic,
				Time:       time.Now(),
				Message:    fmt.Sprintf("panic: %v", r),
				Excerpt:    "",
				NumEntries: len(batch),
				Payload:    nil,
			})
		}
	}()
	s.metrics.dispatchCyclesTotal.Inc()

	payloads, err := s.packer.Pack(batch)
	if err != nil {
		s.emit(base.DiagnosticEvent{
			Kind:       base.DiagnosticSerializationFailed,
			Time:       time.Now(),
			Message:    err.Error(),
			Excerpt:    "",
			NumEntries: len(batch),
			Payload:    nil,
		})
		return
	}
	for i := range payloads {
		payload := payloads[i]
		outcome := s.transport.Send(payload)
		s.onOutcome(&payload, outcome)
	}
}

func (s *Sink) onOutcome(payload *base.BulkPayload, outcome base.SendOutcome) {
	var kind base.DiagnosticKind
	switch outcome.Kind {
	case base.OutcomeSuccess:
		s.logger.Debugf("delivered %s", payload.String())
		return
	case base.OutcomePartialFailure:
		kind = base.DiagnosticItemsRejected
		if len(outcome.FailedItems) > 0 {
			// accepted entries are already indexed and must not be saved for resending
			rejected := payload.SelectEntries(outcome.FailedItems)
			payload = &rejected
		}
	case base.OutcomeClientError:
		kind = base.DiagnosticClientError
	default:
		kind = base.DiagnosticTransportFailure
	}
	s.logger.Debugf("failed %s: %s", payload.String(), outcome.String())
	s.emit(base.DiagnosticEvent{
		Kind:       kind,
		Time:       time.Now(),
		Message:    outcome.String(),
		Excerpt:    payload.Excerpt(defs.DiagnosticsPayloadExcerptBytes),
		NumEntries: outcome.FailedEntries,
		Payload:    payload,
	})
}

func (s *Sink) reportDrops(lastReported *int64) {
	total := s.buffer.Dropped()
	if total <= *lastReported {
		return
	}
	s.emit(base.DiagnosticEvent{
		Kind:       base.DiagnosticEntriesDropped,
		Time:       time.Now(),
		Message:    fmt.Sprintf("%d entries dropped since last report, %d in total", total-*lastReported, total),
		Excerpt:    "",
		NumEntries: int(total - *lastReported),
		Payload:    nil,
	})
	*lastReported = total
}

func (s *Sink) emit(event base.DiagnosticEvent) {
	if s.diagnostics == nil {
		s.logger.Warnf("%s: %s", event.Kind, event.Message)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("BUG: panic in diagnostics emitter: %v\n%s", r, util.Stack())
		}
	}()
	s.diagnostics.Emit(event)
}
