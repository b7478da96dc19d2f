package hal

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/config"
)

// RangefinderPins is one ultrasonic sensor's trigger and echo lines.
type RangefinderPins struct {
	ID      string
	Trigger Output
	Echo    Input
}

// Board is the opened bay hardware.
//
// Every output is driven low when the board is opened and again on Close,
// so the servo never sees a stray pulse on the way up or down.
type Board struct {
	Rangefinders []RangefinderPins
	Entrance     Input
	Exit         Input
	Servo        Output

	// Display writes each byte slice as one I2C transaction to the LCD backpack.
	Display io.Writer

	outputs []Output
	bus     i2c.BusCloser
}

// Open initialises periph host drivers and claims every pin named in cfg.
func Open(cfg config.HardwareConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostInit, err)
	}

	b := &Board{}

	for _, rf := range cfg.Rangefinders {
		trig, err := outputPin(rf.TriggerPin)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("rangefinder %s trigger: %w", rf.ID, err)
		}
		b.outputs = append(b.outputs, trig)

		echo, err := inputPin(rf.EchoPin, gpio.PullDown)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("rangefinder %s echo: %w", rf.ID, err)
		}

		b.Rangefinders = append(b.Rangefinders, RangefinderPins{ID: rf.ID, Trigger: trig, Echo: echo})
	}

	// Break-beam modules are open collector when active low and need the pull-up.
	pull := gpio.PullDown
	if cfg.IRActiveLow {
		pull = gpio.PullUp
	}

	var err error
	if b.Entrance, err = inputPin(cfg.EntranceIRPin, pull); err != nil {
		b.Close()
		return nil, fmt.Errorf("entrance sensor: %w", err)
	}
	if b.Exit, err = inputPin(cfg.ExitIRPin, pull); err != nil {
		b.Close()
		return nil, fmt.Errorf("exit sensor: %w", err)
	}

	servo, err := outputPin(cfg.ServoPin)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("servo: %w", err)
	}
	b.Servo = servo
	b.outputs = append(b.outputs, servo)

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrBusOpen, cfg.I2CBus, err)
	}
	b.bus = bus
	b.Display = &i2c.Dev{Bus: bus, Addr: cfg.DisplayAddress}

	return b, nil
}

// Close drives every output low and releases the bus. It is safe to call on
// a partially opened board.
func (b *Board) Close() error {
	var errs []error
	for _, out := range b.outputs {
		if err := out.Out(gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	if b.bus != nil {
		if err := b.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		b.bus = nil
	}
	return errors.Join(errs...)
}

func outputPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPinSetup, name, err)
	}
	return p, nil
}

func inputPin(name string, pull gpio.Pull) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPinSetup, name, err)
	}
	return p, nil
}
