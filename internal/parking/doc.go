// Package parking implements the bay's control loop.
//
// Once per cycle the Controller
//
//  1. drains operator commands,
//  2. runs a barrier cycle on a rising edge at the entrance, re-counts the
//     free spots and raises the camera trigger if a car has just parked on
//     the trigger spot,
//  3. runs a barrier cycle on a rising edge at the exit and optimistically
//     frees one spot,
//  4. re-measures every spot and redraws the panel if the count changed,
//
// and then waits for the loop interval.
//
// The loop is strictly sequential. Everything that touches the network
// (the camera trigger, status publication, telemetry, the journal) sits
// behind non-blocking interfaces so a broker outage can never stretch a
// barrier hold or a sensor timeout.
//
// A sensor that times out counts its spot as free. This fails open: a dead
// sensor shows a phantom free space rather than locking the bay.
package parking
