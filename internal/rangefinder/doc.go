// Package rangefinder times HC-SR04 style ultrasonic echoes.
//
// A measurement pulses the trigger line, waits for the echo line to rise and
// then fall, and converts the high time to centimetres. Each wait is bounded
// independently by EchoTimeout, so a disconnected module costs at most two
// timeouts and never blocks the control loop.
//
// Readings outside [MinValid, MaxValid] are reported, not discarded, with
// StatusOutOfRange; callers treat anything other than StatusOK as "no object".
package rangefinder
