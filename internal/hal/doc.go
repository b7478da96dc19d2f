// Package hal is the hardware boundary of the bay controller.
//
// It defines the three capabilities the domain packages are written against
// (a Clock, digital Input/Output lines and an io.Writer display bus) and
// Open, which binds them to real pins through periph.io. Nothing outside
// this package and cmd/smartpark imports periph's host drivers.
//
// The haltest subpackage provides deterministic fakes of every capability.
package hal
