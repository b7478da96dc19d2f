package barrier

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/smartpark-core/internal/hal"
)

// Angle limits of the barrier arm, in degrees.
const (
	ClosedAngle = 0.0
	OpenAngle   = 90.0
)

// Servo positions the barrier arm.
//
// SoftPWM bit-bangs the control signal on a plain GPIO. A hardware PWM
// channel can be dropped in behind the same interface.
type Servo interface {
	// SetAngle drives the arm to deg and blocks until the move has been
	// signalled. deg is clamped to [ClosedAngle, OpenAngle].
	SetAngle(deg float64) error

	// Stop leaves the control line low.
	Stop() error
}

// PWMConfig describes the servo control signal.
type PWMConfig struct {
	Period  time.Duration
	MinDuty float64 // percent at ClosedAngle
	MaxDuty float64 // percent at OpenAngle
	Pulses  int     // periods emitted per move
}

// DefaultPWMConfig is a 50Hz hobby servo signal held for half a second.
func DefaultPWMConfig() PWMConfig {
	return PWMConfig{
		Period:  20 * time.Millisecond,
		MinDuty: 2.5,
		MaxDuty: 7.5,
		Pulses:  25,
	}
}

// clamp bounds deg to the arm's travel.
func clamp(deg float64) float64 {
	switch {
	case deg < ClosedAngle:
		return ClosedAngle
	case deg > OpenAngle:
		return OpenAngle
	default:
		return deg
	}
}

// DutyCycle returns the duty cycle in percent for deg. It is linear from
// MinDuty at ClosedAngle to MaxDuty at OpenAngle.
func (c PWMConfig) DutyCycle(deg float64) float64 {
	deg = clamp(deg)
	return c.MinDuty + (deg/OpenAngle)*(c.MaxDuty-c.MinDuty)
}

// PulseWidth returns the high time per period for deg.
func (c PWMConfig) PulseWidth(deg float64) time.Duration {
	return time.Duration(float64(c.Period) * c.DutyCycle(deg) / 100)
}

// SoftPWM generates the servo signal in software on a single output line.
type SoftPWM struct {
	clock hal.Clock
	pin   hal.Output
	cfg   PWMConfig
}

// NewSoftPWM returns a software servo driver on pin.
func NewSoftPWM(clock hal.Clock, pin hal.Output, cfg PWMConfig) *SoftPWM {
	return &SoftPWM{clock: clock, pin: pin, cfg: cfg}
}

// SetAngle emits cfg.Pulses periods for deg, then leaves the line low.
func (s *SoftPWM) SetAngle(deg float64) error {
	high := s.cfg.PulseWidth(deg)
	low := s.cfg.Period - high

	for i := 0; i < s.cfg.Pulses; i++ {
		if err := s.pin.Out(gpio.High); err != nil {
			return fmt.Errorf("%w: pulse %d: %w", ErrServoWrite, i, err)
		}
		s.clock.Sleep(high)
		if err := s.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("%w: pulse %d: %w", ErrServoWrite, i, err)
		}
		s.clock.Sleep(low)
	}

	return s.Stop()
}

// Stop drives the line low.
func (s *SoftPWM) Stop() error {
	if err := s.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: %w", ErrServoWrite, err)
	}
	return nil
}
