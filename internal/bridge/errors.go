package bridge

import "errors"

// Domain-specific errors for the bridge.
var (
	// ErrNilClient is returned when the bridge is built without an MQTT client.
	ErrNilClient = errors.New("bridge: mqtt client is nil")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrUnknownCommand is returned for command payloads that do not name a
	// known command.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
