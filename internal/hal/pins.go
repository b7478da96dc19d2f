package hal

import "periph.io/x/conn/v3/gpio"

// Input is a digital input line. periph's gpio.PinIn satisfies it.
type Input interface {
	Read() gpio.Level
}

// Output is a digital output line. periph's gpio.PinOut satisfies it.
type Output interface {
	Out(l gpio.Level) error
}

// Active reports whether in currently reads as asserted, honouring the line's
// polarity.
func Active(in Input, activeLow bool) bool {
	level := in.Read()
	if activeLow {
		return level == gpio.Low
	}
	return level == gpio.High
}
