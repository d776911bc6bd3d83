// Package activitylog keeps a bounded, timestamped record of user-visible
// events. It is the failure-visibility surface of a session: decode errors,
// protocol errors and transport failures all end up here.
package activitylog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultSize is the number of entries kept when New is given a non-positive size.
const DefaultSize = 200

// Entry is one activity log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s", e.Time.Format("15:04:05"), e.Message)
}

// Metrics counts log traffic. All fields are read atomically.
type Metrics struct {
	Written     int64
	Overwritten int64
	Errors      int64
}

// Log is safe for concurrent use. Writers never block on readers: entries go
// into a lock-free overlapped ring and are folded into the visible window on read.
type Log struct {
	size   int
	intake mpmc.RichOverlappedRingBuffer[Entry]
	now    func() time.Time

	mu     sync.Mutex
	window []Entry

	metrics Metrics
}

// New creates a log that keeps the most recent size entries.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{
		size:   size,
		intake: mpmc.NewOverlappedRingBuffer[Entry](uint32(size)),
		now:    time.Now,
		window: make([]Entry, 0, size),
	}
}

// Add appends a message stamped with the current time.
func (l *Log) Add(msg string) {
	overwrites, err := l.intake.EnqueueM(Entry{Time: l.now(), Message: msg})
	if err != nil {
		atomic.AddInt64(&l.metrics.Errors, 1)
		return
	}
	atomic.AddInt64(&l.metrics.Written, 1)
	atomic.AddInt64(&l.metrics.Overwritten, int64(overwrites))
}

// Addf appends a formatted message.
func (l *Log) Addf(format string, args ...any) {
	l.Add(fmt.Sprintf(format, args...))
}

// drain moves queued entries into the window, keeping the newest size entries.
// Callers hold l.mu.
func (l *Log) drain() {
	for !l.intake.IsEmpty() {
		e, err := l.intake.Dequeue()
		if err != nil {
			atomic.AddInt64(&l.metrics.Errors, 1)
			return
		}
		if len(l.window) == l.size {
			copy(l.window, l.window[1:])
			l.window = l.window[:l.size-1]
			atomic.AddInt64(&l.metrics.Overwritten, 1)
		}
		l.window = append(l.window, e)
	}
}

// Entries returns the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drain()
	return append([]Entry(nil), l.window...)
}

// Lines returns the retained entries rendered as strings, oldest first.
func (l *Log) Lines() []string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drain()
	return len(l.window)
}

// Clear discards every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drain()
	l.window = l.window[:0]
}

// GetMetrics returns a snapshot of the counters.
func (l *Log) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&l.metrics.Written),
		Overwritten: atomic.LoadInt64(&l.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&l.metrics.Errors),
	}
}
