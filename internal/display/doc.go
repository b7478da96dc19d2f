// Package display drives a 16x2 HD44780 character LCD through a PCF8574
// I2C backpack in 4-bit mode.
package display
