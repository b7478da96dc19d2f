// Package barrier drives the entry/exit arm.
//
// The arm is a hobby servo positioned by a 50Hz control signal whose duty
// cycle encodes the angle: 2.5% is closed (0 degrees), 7.5% is open (90
// degrees). SoftPWM emits a fixed number of periods per move and then
// releases the line, so the servo is only powered while it travels.
package barrier
