// Package analytics records search events without ever blocking the
// request path: every emit is a non-blocking channel send, dropped (and
// counted) if the sink's buffer is full, and processed by a single
// background worker.
package analytics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
)

// Event is one recorded search event.
type Event struct {
	Timestamp     time.Time
	Query         string
	Mode          string
	Domains       []string
	ResultCount   int
	DurationMs    int64
	Degraded      bool
	RerankChoice  string
	RefineEnabled bool
}

// Sink accepts events for asynchronous persistence.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Recorder buffers events on a channel and persists them on a single
// background goroutine, so a slow or unavailable analytics backend never
// adds latency to a search response.
type Recorder struct {
	sink    Sink
	events  chan Event
	dropped int64
	logger  zerolog.Logger
	done    chan struct{}
}

// NewRecorder starts a Recorder with the given buffer size.
func NewRecorder(sink Sink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &Recorder{
		sink:   sink,
		events: make(chan Event, bufferSize),
		logger: observability.Logger("search.analytics"),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Emit records an event without blocking the caller. If the buffer is
// full, the event is dropped and the drop counter incremented - analytics
// is best-effort and must never back-pressure a search request.
func (r *Recorder) Emit(event Event) {
	select {
	case r.events <- event:
	default:
		atomic.AddInt64(&r.dropped, 1)
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return atomic.LoadInt64(&r.dropped)
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink.Record(ctx, event); err != nil {
			r.logger.Warn().Err(err).Msg("analytics sink record failed")
		}
		cancel()
	}
}

// Close stops accepting new events and waits for the buffered events to
// drain through the sink.
func (r *Recorder) Close() {
	close(r.events)
	<-r.done
}

// LogSink records every event as a structured debug-level log line. Useful
// as a default sink when no dedicated analytics backend is configured, so
// Emit still has somewhere to flow rather than the recorder being omitted.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{logger: observability.Logger("search.analytics.log")}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, event Event) error {
	s.logger.Debug().
		Str("query", event.Query).
		Str("mode", event.Mode).
		Int("result_count", event.ResultCount).
		Int64("duration_ms", event.DurationMs).
		Bool("degraded", event.Degraded).
		Msg("search event")
	return nil
}
