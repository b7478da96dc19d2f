package rangefinder

import "errors"

var (
	// ErrUnknownSensor is returned by Measure for an ID that was not configured.
	ErrUnknownSensor = errors.New("rangefinder: unknown sensor")

	// ErrTrigger is returned when the trigger line cannot be driven.
	ErrTrigger = errors.New("rangefinder: trigger write failed")
)
