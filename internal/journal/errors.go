package journal

import "errors"

var (
	// ErrInvalidEntry is returned for entries without a kind.
	ErrInvalidEntry = errors.New("journal: entry has no kind")

	// ErrClosed is returned when appending to a closed Writer.
	ErrClosed = errors.New("journal: writer closed")

	// ErrQueueFull is returned when the Writer cannot accept an entry.
	ErrQueueFull = errors.New("journal: queue full")
)
