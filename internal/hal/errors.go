package hal

import "errors"

var (
	// ErrHostInit is returned when periph cannot load host drivers.
	ErrHostInit = errors.New("hal: host init failed")

	// ErrPinNotFound is returned when a configured pin name is unknown to gpioreg.
	ErrPinNotFound = errors.New("hal: pin not found")

	// ErrPinSetup is returned when a pin cannot be put into the required mode.
	ErrPinSetup = errors.New("hal: pin setup failed")

	// ErrBusOpen is returned when the display bus cannot be opened.
	ErrBusOpen = errors.New("hal: bus open failed")
)
