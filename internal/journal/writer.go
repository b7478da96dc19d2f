package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Error(msg string, args ...any)
}

// Writer appends entries to a Repository from a background goroutine.
type Writer struct {
	repo   Repository
	logger Logger
	queue  chan Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter starts a writer with room for queueSize pending entries.
// Zero uses the default size.
func NewWriter(repo Repository, queueSize int, logger Logger) *Writer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = nopLogger{}
	}

	w := &Writer{
		repo:   repo,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Append queues e without blocking. It returns ErrQueueFull when the queue
// is full and ErrClosed after Close.
func (w *Writer) Append(e Entry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- e:
		return nil
	default:
		w.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting entries, writes what is queued and waits for the
// goroutine to exit.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return nil
}

// Stats returns how many entries were written, dropped and failed.
func (w *Writer) Stats() (written, dropped, failed uint64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.repo.Create(ctx, &e)
		cancel()

		if err != nil {
			w.failed.Add(1)
			w.logger.Error("journal write failed", "kind", e.Kind, "error", err)
			continue
		}
		w.written.Add(1)
	}
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
