// Package ringchan provides a bounded channel with overwrite-oldest semantics
// for fan-out of state snapshots to slow observers.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel wraps a buffered channel so producers never block: when the
// buffer is full the oldest element is discarded.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
//
// Sends and Close are serialized, so any number of producers may share one
// RingChannel and Send after Close is a no-op.
type RingChannel[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.metrics.addWritten()
			return dropped
		default:
		}
		select {
		case <-rc.ch:
			rc.metrics.addOverwritten()
			dropped = true
		default:
			// A reader emptied the slot between the two selects.
		}
	}
}

// Close closes the underlying channel. Buffered elements remain readable.
// Calling Close more than once is safe.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for a RingChannel.
type Metrics struct {
	Written     int64
	Overwritten int64
}

func (m *Metrics) addWritten()     { atomic.AddInt64(&m.Written, 1) }
func (m *Metrics) addOverwritten() { atomic.AddInt64(&m.Overwritten, 1) }
