package barrier

import "errors"

// ErrServoWrite is returned when the servo control line cannot be driven.
var ErrServoWrite = errors.New("barrier: servo write failed")
