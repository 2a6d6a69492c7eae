package batchbuffer

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// BatchBuffer is a bounded FIFO queue of entries waiting to be sent, together with the state of its owner sink
//
// Every entry accepted gets a sequence number. An entry is settled once it has been sent (whatever the outcome) or
// discarded. Flush waiters are completed when all entries enqueued before their creation are settled.
//
// All members are protected by one mutex, held only for in-memory operations. Enqueue never blocks for longer.
type BatchBuffer struct {
	logger       logger.Logger
	lock         sync.Mutex
	ring         []*base.StructuredEntry
	head         int // index of the oldest entry
	count        int
	state        State
	lastFlush    time.Time
	enqueuedSeq  uint64 // sequence of the last accepted entry
	drainedSeq   uint64 // sequence of the last entry taken out of ring
	settledSeq   uint64 // sequence of the last settled entry
	waiters      []flushWaiter
	sizeTrigger  int
	sizeSignal   chan struct{}
	droppedCount *xsync.Counter
	metrics      bufferMetrics
}

type flushWaiter struct {
	targetSeq uint64
	signal    *channels.SignalAwaitable
}

// NewBatchBuffer creates a BatchBuffer holding up to capacity entries
//
// sizeTrigger is the number of buffered entries which fires SizeSignal, or zero to never fire it
func NewBatchBuffer(parentLogger logger.Logger, capacity int, sizeTrigger int, metricCreator promreg.MetricCreator) *BatchBuffer {
	if capacity <= 0 {
		parentLogger.Panicf("invalid buffer capacity: %d", capacity)
	}
	return &BatchBuffer{
		logger:       parentLogger.WithField(defs.LabelComponent, "BatchBuffer"),
		lock:         sync.Mutex{},
		ring:         make([]*base.StructuredEntry, capacity),
		head:         0,
		count:        0,
		state:        StateOpen,
		lastFlush:    time.Time{},
		enqueuedSeq:  0,
		drainedSeq:   0,
		settledSeq:   0,
		waiters:      nil,
		sizeTrigger:  sizeTrigger,
		sizeSignal:   make(chan struct{}, 1),
		droppedCount: &xsync.Counter{},
		metrics:      newBufferMetrics(metricCreator),
	}
}

// Enqueue appends the entry if the buffer is open and not full, or counts it as dropped otherwise
//
// Returns true if accepted
func (buf *BatchBuffer) Enqueue(entry *base.StructuredEntry) bool {
	buf.lock.Lock()
	if buf.state != StateOpen {
		buf.lock.Unlock()
		buf.onDropped(DropClosed, 1)
		return false
	}
	if buf.count == len(buf.ring) {
		buf.lock.Unlock()
		buf.onDropped(DropOverflow, 1)
		return false
	}
	buf.ring[(buf.head+buf.count)%len(buf.ring)] = entry
	buf.count++
	buf.enqueuedSeq++
	reachedTrigger := buf.sizeTrigger > 0 && buf.count >= buf.sizeTrigger
	buf.lock.Unlock()

	buf.metrics.enqueuedTotal.Inc()
	buf.metrics.bufferedEntries.Inc()
	if reachedTrigger {
		// coalesce: one pending signal is enough to make the consumer drain
		select {
		case buf.sizeSignal <- struct{}{}:
		default:
		}
	}
	return true
}

// SizeSignal returns the channel notified when the number of buffered entries reaches the size trigger
func (buf *BatchBuffer) SizeSignal() <-chan struct{} {
	return buf.sizeSignal
}

// Len returns the number of buffered entries
func (buf *BatchBuffer) Len() int {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	return buf.count
}

// Drain takes up to max oldest entries out of the buffer (all if max <= 0)
//
// Returns the entries and the sequence of the last one, to be passed to Settle after they're sent.
// Returns nil if the buffer is empty.
func (buf *BatchBuffer) Drain(max int) ([]*base.StructuredEntry, uint64) {
	buf.lock.Lock()
	n := buf.count
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		seq := buf.drainedSeq
		buf.lock.Unlock()
		return nil, seq
	}
	batch := make([]*base.StructuredEntry, n)
	for i := 0; i < n; i++ {
		pos := (buf.head + i) % len(buf.ring)
		batch[i] = buf.ring[pos]
		buf.ring[pos] = nil
	}
	buf.head = (buf.head + n) % len(buf.ring)
	buf.count -= n
	buf.drainedSeq += uint64(n)
	buf.lastFlush = time.Now()
	seq := buf.drainedSeq
	buf.lock.Unlock()

	buf.metrics.bufferedEntries.Sub(int64(n))
	return batch, seq
}

// Settle marks all entries up to the given sequence as done, completing flush waiters which target them
func (buf *BatchBuffer) Settle(seq uint64) {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	if seq > buf.settledSeq {
		buf.settledSeq = seq
	}
	buf.releaseWaitersLocked()
}

// NewFlushWaiter returns an Awaitable completed when all the entries accepted so far are settled
//
// It's completed immediately if there is nothing pending
func (buf *BatchBuffer) NewFlushWaiter() channels.Awaitable {
	signal := channels.NewSignalAwaitable()
	buf.lock.Lock()
	defer buf.lock.Unlock()
	if buf.settledSeq >= buf.enqueuedSeq {
		signal.Signal()
		return signal
	}
	buf.waiters = append(buf.waiters, flushWaiter{targetSeq: buf.enqueuedSeq, signal: signal})
	return signal
}

// BeginClosing stops accepting new entries. Returns false if closing has already begun.
func (buf *BatchBuffer) BeginClosing() bool {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	if buf.state != StateOpen {
		return false
	}
	buf.state = StateClosing
	return true
}

// Close marks the buffer closed and discards all remaining entries as dropped
//
// All entries drained before are considered settled and all flush waiters are completed, even if a send is still in
// progress. Returns the count of discarded entries.
func (buf *BatchBuffer) Close() int {
	buf.lock.Lock()
	if buf.state == StateClosed {
		buf.lock.Unlock()
		return 0
	}
	buf.state = StateClosed
	n := buf.count
	for i := 0; i < n; i++ {
		buf.ring[(buf.head+i)%len(buf.ring)] = nil
	}
	buf.head = 0
	buf.count = 0
	buf.drainedSeq += uint64(n)
	buf.settledSeq = buf.drainedSeq
	buf.releaseWaitersLocked()
	buf.lock.Unlock()

	if n > 0 {
		buf.metrics.bufferedEntries.Sub(int64(n))
		buf.onDropped(DropShutdown, n)
		buf.logger.Warnf("discarded %d entries on closing", n)
	}
	return n
}

// State returns the current lifecycle state
func (buf *BatchBuffer) State() State {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	return buf.state
}

// Dropped returns the total count of dropped entries
func (buf *BatchBuffer) Dropped() int64 {
	return buf.droppedCount.Value()
}

// Stats returns a snapshot of the buffer state
func (buf *BatchBuffer) Stats() Stats {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	return Stats{
		State:     buf.state,
		Buffered:  buf.count,
		Capacity:  len(buf.ring),
		Enqueued:  buf.enqueuedSeq,
		Settled:   buf.settledSeq,
		Dropped:   buf.droppedCount.Value(),
		LastFlush: buf.lastFlush,
	}
}

func (buf *BatchBuffer) onDropped(reason DropReason, count int) {
	buf.droppedCount.Add(int64(count))
	buf.metrics.onDropped(reason, count)
}

func (buf *BatchBuffer) releaseWaitersLocked() {
	remaining := buf.waiters[:0]
	for _, w := range buf.waiters {
		if w.targetSeq <= buf.settledSeq {
			w.signal.Signal()
		} else {
			remaining = append(remaining, w)
		}
	}
	for i := len(remaining); i < len(buf.waiters); i++ {
		buf.waiters[i] = flushWaiter{}
	}
	buf.waiters = remaining
}
