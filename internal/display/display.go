package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/smartpark-core/internal/hal"
)

// HD44780 commands and PCF8574 backpack bits.
const (
	cmdClear     byte = 0x01
	cmdLine1     byte = 0x80
	cmdLine2     byte = 0xC0
	bitRegSelect byte = 0x01 // character register
	bitEnable    byte = 0x04
	bitBacklight byte = 0x08
)

// clearDuration covers the controller's slowest command.
const clearDuration = 5 * time.Millisecond

// initSequence puts the controller into 4-bit, two-line mode with the
// cursor hidden and left-to-right entry, then clears it.
var initSequence = []byte{0x33, 0x32, 0x28, 0x0C, 0x06, cmdClear}

// lineAddress maps a 1-based line number to its DDRAM address command.
var lineAddress = map[int]byte{1: cmdLine1, 2: cmdLine2}

// Buffer is the text of both lines.
type Buffer [2]string

// Config is the panel geometry and latch timing.
type Config struct {
	Width        int
	Backlight    bool
	EnablePulse  time.Duration // settle after enable high
	EnableSettle time.Duration // settle after enable low
}

// DefaultConfig is a 16x2 panel with the backlight on.
func DefaultConfig() Config {
	return Config{
		Width:        16,
		Backlight:    true,
		EnablePulse:  500 * time.Microsecond,
		EnableSettle: 100 * time.Microsecond,
	}
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Warn(msg string, args ...any)
}

// Driver writes text to a character LCD behind an I2C backpack.
//
// Every byte goes out as two nibbles, each latched by pulsing the enable
// bit, so a single character costs six bus transactions.
type Driver struct {
	mu          sync.Mutex
	bus         io.Writer
	clock       hal.Clock
	cfg         Config
	logger      Logger
	initialized bool
	lines       Buffer
}

// NewDriver returns a Driver on bus. Init must be called before writing.
func NewDriver(bus io.Writer, clock hal.Clock, cfg Config) *Driver {
	return &Driver{bus: bus, clock: clock, cfg: cfg, logger: nopLogger{}}
}

// SetLogger sets the logger for bus write failures.
func (d *Driver) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	d.logger = logger
}

// Init sends the power-on sequence. The driver is usable afterwards even if
// some writes failed; the failure count is returned so the caller can log it.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	failed := 0
	for _, cmd := range initSequence {
		if err := d.writeByte(cmd, 0); err != nil {
			failed++
		}
	}
	d.clock.Sleep(clearDuration)
	d.initialized = true
	d.lines = Buffer{}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d init commands failed", ErrBusWrite, failed, len(initSequence))
	}
	return nil
}

// WriteLine writes text to line (1 or 2), padded or truncated to the width.
// A failed byte is skipped and the rest of the line is still written.
func (d *Driver) WriteLine(text string, line int) error {
	addr, ok := lineAddress[line]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	padded := Pad(text, d.cfg.Width)

	failed := 0
	if err := d.writeByte(addr, 0); err != nil {
		failed++
	}
	for i := 0; i < len(padded); i++ {
		if err := d.writeByte(padded[i], bitRegSelect); err != nil {
			failed++
		}
	}

	d.lines[line-1] = padded

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d bytes on line %d", ErrBusWrite, failed, len(padded)+1, line)
	}
	return nil
}

// Render writes both lines of buf.
func (d *Driver) Render(buf Buffer) error {
	err1 := d.WriteLine(buf[0], 1)
	err2 := d.WriteLine(buf[1], 2)
	if err1 != nil {
		return err1
	}
	return err2
}

// Clear blanks the panel.
func (d *Driver) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	err := d.writeByte(cmdClear, 0)
	d.clock.Sleep(clearDuration)
	d.lines = Buffer{}
	if err != nil {
		return fmt.Errorf("%w: clear: %w", ErrBusWrite, err)
	}
	return nil
}

// Lines returns what was last written to each line, padded to the width.
func (d *Driver) Lines() Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

// writeByte sends b as two nibbles. mode is bitRegSelect for characters and
// 0 for commands. A failed nibble aborts the byte.
func (d *Driver) writeByte(b, mode byte) error {
	if err := d.writeNibble(mode | (b & 0xF0)); err != nil {
		d.logger.Warn("display bus write failed", "byte", fmt.Sprintf("%#02x", b), "error", err)
		return err
	}
	if err := d.writeNibble(mode | ((b << 4) & 0xF0)); err != nil {
		d.logger.Warn("display bus write failed", "byte", fmt.Sprintf("%#02x", b), "error", err)
		return err
	}
	return nil
}

func (d *Driver) writeNibble(bits byte) error {
	if d.cfg.Backlight {
		bits |= bitBacklight
	}
	if err := d.write(bits); err != nil {
		return err
	}
	if err := d.write(bits | bitEnable); err != nil {
		return err
	}
	d.clock.Sleep(d.cfg.EnablePulse)
	if err := d.write(bits &^ bitEnable); err != nil {
		return err
	}
	d.clock.Sleep(d.cfg.EnableSettle)
	return nil
}

func (d *Driver) write(b byte) error {
	_, err := d.bus.Write([]byte{b})
	return err
}

// Pad right-pads text with spaces, or truncates it, to exactly width bytes.
// Characters outside printable ASCII are replaced with '?' since the panel's
// character ROM has no mapping for them.
func Pad(text string, width int) string {
	var sb strings.Builder
	sb.Grow(width)
	for _, r := range text {
		if sb.Len() == width {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		sb.WriteByte(byte(r))
	}
	for sb.Len() < width {
		sb.WriteByte(' ')
	}
	return sb.String()
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}
