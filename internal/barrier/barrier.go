package barrier

import (
	"errors"
	"fmt"
	"sync"
)

// State is the tracked position of the arm.
type State int

const (
	Closed State = iota
	Open
)

// String returns "closed" or "open".
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Angle returns the arm angle for s.
func (s State) Angle() float64 {
	if s == Open {
		return OpenAngle
	}
	return ClosedAngle
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Actuator tracks the barrier's state and drives the servo.
//
// Open and Close are idempotent: a request for the state the arm is already
// in emits no pulses. The tracked state changes only after the servo has
// been signalled for the full move.
type Actuator struct {
	mu     sync.Mutex
	servo  Servo
	state  State
	logger Logger
}

// NewActuator returns an Actuator that assumes the arm starts closed.
func NewActuator(servo Servo) *Actuator {
	return &Actuator{servo: servo, state: Closed, logger: nopLogger{}}
}

// SetLogger sets the logger.
func (a *Actuator) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	a.logger = logger
}

// State returns the tracked state.
func (a *Actuator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Open raises the arm.
func (a *Actuator) Open() error {
	return a.moveTo(Open)
}

// Close lowers the arm.
func (a *Actuator) Close() error {
	return a.moveTo(Closed)
}

func (a *Actuator) moveTo(target State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == target {
		return nil
	}
	if err := a.servo.SetAngle(target.Angle()); err != nil {
		a.logger.Warn("barrier move failed", "target", target.String(), "error", err)
		return fmt.Errorf("barrier %s: %w", target, err)
	}
	a.state = target
	a.logger.Info("barrier moved", "state", target.String())
	return nil
}

// Cleanup drives the arm closed regardless of tracked state and leaves the
// control line low. It is the shutdown path and keeps going on error.
func (a *Actuator) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if err := a.servo.SetAngle(ClosedAngle); err != nil {
		errs = append(errs, err)
	}
	if err := a.servo.Stop(); err != nil {
		errs = append(errs, err)
	}
	a.state = Closed
	return errors.Join(errs...)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
