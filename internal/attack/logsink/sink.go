package logsink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrSinkCreate is returned when the sink's file cannot be created.
var ErrSinkCreate = errors.New("unable to create log file")

// Sink consumes records of type *T from an unbounded queue and appends each
// one, rendered in the configured format, to a file. A nil record is the
// explicit shutdown signal; closing the queue has the same effect.
type Sink[T any] struct {
	name   string
	path   string
	format Format
	queue  *Queue[*T]
	logger *zap.Logger

	file io.Closer
	w    *bufio.Writer

	written atomic.Int64
	failed  atomic.Int64
	done    chan struct{}
}

// Option configures a Sink.
type Option func(*options)

type options struct {
	logger *zap.Logger
	name   string
}

// WithLogger sets the logger used for write warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName labels the sink in log output, e.g. "debug" or "requests".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Open creates (truncating) the file at path and returns a sink writing to
// it. With an empty path the sink still drains its queue but writes nothing.
func Open[T any](path string, format Format, opts ...Option) (*Sink[T], error) {
	o := options{logger: zap.NewNop(), name: "log"}
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		return newSink[T](o, "", format, nil, nil), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSinkCreate, path, err)
	}
	return newSink[T](o, path, format, f, f), nil
}

func newSink[T any](o options, path string, format Format, w io.Writer, c io.Closer) *Sink[T] {
	s := &Sink[T]{
		name:   o.name,
		path:   path,
		format: format,
		queue:  NewQueue[*T](),
		logger: o.logger.With(zap.String("component", "logsink"), zap.String("sink", o.name)),
		file:   c,
		done:   make(chan struct{}),
	}
	if w != nil {
		s.w = bufio.NewWriter(w)
	}
	return s
}

// Path returns the file path, or "" for a discarding sink.
func (s *Sink[T]) Path() string { return s.path }

// Format returns the line format.
func (s *Sink[T]) Format() Format { return s.format }

// Enabled reports whether records are persisted.
func (s *Sink[T]) Enabled() bool { return s != nil && s.w != nil }

// Send enqueues rec without blocking. Records sent after shutdown are
// dropped and Send returns false.
func (s *Sink[T]) Send(rec *T) bool {
	if s == nil {
		return false
	}
	return s.queue.Send(rec)
}

// Shutdown sends the explicit end-of-stream signal. Records queued before
// it are still written.
func (s *Sink[T]) Shutdown() {
	if s == nil {
		return
	}
	s.queue.Send(nil)
	s.queue.Close()
}

// Run consumes the queue until shutdown, then flushes and closes the file.
// It is meant to be run in its own goroutine.
func (s *Sink[T]) Run() error {
	defer close(s.done)

	for {
		rec, ok := s.queue.Recv()
		if !ok || rec == nil {
			break
		}
		s.write(rec)
	}

	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			s.logger.Debug("flush failed", zap.String("path", s.path), zap.Error(err))
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.Debug("close failed", zap.String("path", s.path), zap.Error(err))
		}
	}
	s.logger.Debug("sink stopped",
		zap.Int64("written", s.written.Load()),
		zap.Int64("failed", s.failed.Load()))
	return nil
}

func (s *Sink[T]) write(rec *T) {
	if s.w == nil {
		return
	}

	line, err := Render(s.format, rec)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("failed to encode record", zap.String("format", s.format.String()), zap.Error(err))
		return
	}

	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		s.failed.Add(1)
		s.logger.Warn("failed to write record", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.written.Add(1)
}

// Done is closed once Run has flushed and returned.
func (s *Sink[T]) Done() <-chan struct{} { return s.done }

// Written returns the number of records handed to the file writer.
func (s *Sink[T]) Written() int64 { return s.written.Load() }

// Failed returns the number of records that could not be encoded or written.
func (s *Sink[T]) Failed() int64 { return s.failed.Load() }
