// Package eventlog is the best-effort audit trail. Record never blocks and
// never fails; a single writer goroutine drains a buffered queue into one or
// more sinks, and write failures are only logged.
package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
)

const (
	defaultBuffer = 1024
	writeTimeout  = 5 * time.Second
)

var ErrClosed = errors.New("event logger closed")

// Sink persists one audit entry.
type Sink interface {
	AppendEvent(ctx context.Context, e promptparty.EventLogEntry) error
}

type namedSink struct {
	name string
	sink Sink
}

// item is either an entry to write or a flush marker.
type item struct {
	entry   promptparty.EventLogEntry
	flushed chan struct{}
}

type Logger struct {
	log    *slog.Logger
	clock  clockwork.Clock
	sinks  []namedSink
	buffer int

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}
}

type Option func(*Logger)

func WithClock(c clockwork.Clock) Option {
	return func(l *Logger) { l.clock = c }
}

func WithBuffer(n int) Option {
	return func(l *Logger) { l.buffer = n }
}

// WithSink adds a secondary sink that receives every entry after the primary.
func WithSink(name string, s Sink) Option {
	return func(l *Logger) { l.sinks = append(l.sinks, namedSink{name: name, sink: s}) }
}

// New starts the writer goroutine. primary is usually the document store.
func New(primary Sink, logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		log:    logger,
		clock:  clockwork.NewRealClock(),
		sinks:  []namedSink{{name: "store", sink: primary}},
		buffer: defaultBuffer,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.queue = make(chan item, l.buffer)

	go l.run()
	return l
}

// Record queues e for writing. ID and Timestamp are filled in when empty.
// When the queue is full or the logger is closed the entry is dropped.
func (l *Logger) Record(e promptparty.EventLogEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.drop(e, "closed")
		return
	}
	select {
	case l.queue <- item{entry: e}:
	default:
		l.drop(e, "queue full")
	}
}

func (l *Logger) drop(e promptparty.EventLogEntry, reason string) {
	metrics.EventLogDroppedTotal.Inc()
	l.log.Warn("audit entry dropped", "type", e.Type, "reason", reason)
}

// Flush blocks until every entry recorded before the call has been written.
func (l *Logger) Flush(ctx context.Context) error {
	marker := make(chan struct{})

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	select {
	case l.queue <- item{flushed: marker}:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)

	for it := range l.queue {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		l.write(it.entry)
	}
}

func (l *Logger) write(e promptparty.EventLogEntry) {
	for _, s := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.sink.AppendEvent(ctx, e)
		cancel()
		if err != nil {
			metrics.EventLogWriteErrorsTotal.WithLabelValues(s.name).Inc()
			l.log.Error("writing audit entry", "sink", s.name, "type", e.Type, "error", err)
		}
	}
}
