package display

import "errors"

var (
	// ErrNotInitialized is returned by writes issued before Init.
	ErrNotInitialized = errors.New("display: not initialized")

	// ErrInvalidLine is returned for a line number other than 1 or 2.
	ErrInvalidLine = errors.New("display: invalid line")

	// ErrBusWrite wraps bus failures. The text carries how many bytes were lost.
	ErrBusWrite = errors.New("display: bus write failed")
)
