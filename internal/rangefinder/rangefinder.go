package rangefinder

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/smartpark-core/internal/hal"
)

// Status classifies a reading.
type Status int

const (
	// StatusOK is an in-band echo.
	StatusOK Status = iota
	// StatusTimeout means the echo never rose or never fell within EchoTimeout.
	StatusTimeout
	// StatusOutOfRange means the echo was timed but fell outside the valid band.
	StatusOutOfRange
)

// String returns the status name used in logs and telemetry.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusOutOfRange:
		return "out_of_range"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reading is one distance sample. Centimetres is only set when Status is
// StatusOK; it is zero for every "no object" reading.
type Reading struct {
	SensorID    string
	Centimetres float64
	Status      Status
}

// Present reports whether an object was seen inside the valid band.
func (r Reading) Present() bool {
	return r.Status == StatusOK
}

// Sensor is one ultrasonic module's wiring.
type Sensor struct {
	ID      string
	Trigger hal.Output
	Echo    hal.Input
}

// Config holds pulse timing and the accepted distance band.
type Config struct {
	TriggerPulse time.Duration
	EchoTimeout  time.Duration
	PollInterval time.Duration
	Settle       time.Duration
	MinValid     float64
	MaxValid     float64
	SpeedOfSound float64 // cm/s
}

// DefaultConfig matches the HC-SR04 datasheet and the bay's 10cm mounting height.
func DefaultConfig() Config {
	return Config{
		TriggerPulse: 10 * time.Microsecond,
		EchoTimeout:  40 * time.Millisecond,
		PollInterval: 10 * time.Microsecond,
		Settle:       50 * time.Millisecond,
		MinValid:     1,
		MaxValid:     10,
		SpeedOfSound: 34300,
	}
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Rangefinder measures a fixed set of ultrasonic sensors.
//
// Thread Safety:
//   - Measure and MeasureAll may be called concurrently. A single mutex
//     serialises them so two trigger pulses can never overlap and corrupt
//     each other's echo.
type Rangefinder struct {
	mu      sync.Mutex
	clock   hal.Clock
	cfg     Config
	sensors []Sensor
	index   map[string]int
	logger  Logger
}

// New returns a Rangefinder over sensors, in spot order.
func New(clock hal.Clock, cfg Config, sensors ...Sensor) *Rangefinder {
	r := &Rangefinder{
		clock:   clock,
		cfg:     cfg,
		sensors: sensors,
		index:   make(map[string]int, len(sensors)),
		logger:  nopLogger{},
	}
	for i, s := range sensors {
		r.index[s.ID] = i
	}
	return r
}

// SetLogger sets the logger used for per-reading diagnostics.
func (r *Rangefinder) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	r.logger = logger
}

// Sensors returns the configured sensor IDs in spot order.
func (r *Rangefinder) Sensors() []string {
	ids := make([]string, len(r.sensors))
	for i, s := range r.sensors {
		ids[i] = s.ID
	}
	return ids
}

// Measure takes one reading from the named sensor.
//
// A timed-out or out-of-band echo is not an error; it is reported through
// the reading's Status. Errors are returned only for an unknown sensor or a
// trigger line that cannot be driven.
func (r *Rangefinder) Measure(id string) (Reading, error) {
	i, ok := r.index[id]
	if !ok {
		return Reading{SensorID: id, Status: StatusTimeout}, fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.measure(r.sensors[i])
}

// MeasureAll reads every sensor in order with Settle between them so one
// module's echo has died away before the next is pulsed. A sensor whose
// trigger fails is reported as a timeout and logged.
func (r *Rangefinder) MeasureAll() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	readings := make([]Reading, len(r.sensors))
	for i, s := range r.sensors {
		if i > 0 {
			r.clock.Sleep(r.cfg.Settle)
		}
		reading, err := r.measure(s)
		if err != nil {
			r.logger.Warn("rangefinder measurement failed", "sensor", s.ID, "error", err)
		}
		readings[i] = reading
	}
	return readings
}

// measure must be called with r.mu held.
func (r *Rangefinder) measure(s Sensor) (Reading, error) {
	reading := Reading{SensorID: s.ID, Status: StatusTimeout}

	if err := s.Trigger.Out(gpio.High); err != nil {
		return reading, fmt.Errorf("%w: %s: %w", ErrTrigger, s.ID, err)
	}
	r.clock.Sleep(r.cfg.TriggerPulse)
	if err := s.Trigger.Out(gpio.Low); err != nil {
		return reading, fmt.Errorf("%w: %s: %w", ErrTrigger, s.ID, err)
	}

	rise, ok := r.waitFor(s.Echo, gpio.High)
	if !ok {
		r.logger.Debug("echo never rose", "sensor", s.ID)
		return reading, nil
	}
	fall, ok := r.waitFor(s.Echo, gpio.Low)
	if !ok {
		r.logger.Debug("echo never fell", "sensor", s.ID)
		return reading, nil
	}

	cm := Round2(fall.Sub(rise).Seconds() * r.cfg.SpeedOfSound / 2)
	if cm < r.cfg.MinValid || cm > r.cfg.MaxValid {
		r.logger.Debug("echo outside valid band", "sensor", s.ID, "raw_cm", cm)
		reading.Status = StatusOutOfRange
		return reading, nil
	}

	reading.Centimetres = cm
	reading.Status = StatusOK
	return reading, nil
}

// waitFor polls in until it reads level or EchoTimeout elapses. It returns
// the time the level was first observed.
func (r *Rangefinder) waitFor(in hal.Input, level gpio.Level) (time.Time, bool) {
	start := r.clock.Now()
	for {
		now := r.clock.Now()
		if in.Read() == level {
			return now, true
		}
		if now.Sub(start) >= r.cfg.EchoTimeout {
			return time.Time{}, false
		}
		r.clock.Sleep(r.cfg.PollInterval)
	}
}

// Round2 rounds cm to two decimal places.
func Round2(cm float64) float64 {
	return math.Round(cm*100) / 100
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
