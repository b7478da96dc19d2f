// Package haltest provides deterministic fakes for the hal capabilities.
package haltest

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Epoch is the start time of every FakeClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// Clock
// =============================================================================

// FakeClock is a hal.Clock whose time only moves when slept on or advanced.
// Sleep and After return immediately after moving time forward, so a test
// exercising a 5s barrier hold completes instantly.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

// NewFakeClock returns a clock at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake time by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	c.mu.Unlock()
}

// After advances the fake time by d and returns an already-fired channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.Sleep(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// Advance moves time forward without counting as a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Elapsed returns how far the clock has moved since Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// Slept returns the total time passed to Sleep and After.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// =============================================================================
// Digital lines
// =============================================================================

// Write is one recorded output transition.
type Write struct {
	Level gpio.Level
	At    time.Time
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu     sync.Mutex
	clock  *FakeClock
	writes []Write
	err    error
	onOut  func(gpio.Level)
}

// NewFakeOutput returns an output stamped with clock. clock may be nil.
func NewFakeOutput(clock *FakeClock) *FakeOutput {
	return &FakeOutput{clock: clock}
}

// Out records l, or returns the configured failure.
func (o *FakeOutput) Out(l gpio.Level) error {
	o.mu.Lock()
	if o.err != nil {
		err := o.err
		o.mu.Unlock()
		return err
	}
	w := Write{Level: l}
	if o.clock != nil {
		w.At = o.clock.Now()
	}
	o.writes = append(o.writes, w)
	hook := o.onOut
	o.mu.Unlock()

	if hook != nil {
		hook(l)
	}
	return nil
}

// Fail makes every subsequent Out return err. nil restores normal behaviour.
func (o *FakeOutput) Fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Writes returns a copy of the recorded writes.
func (o *FakeOutput) Writes() []Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Write(nil), o.writes...)
}

// Levels returns the recorded levels in order.
func (o *FakeOutput) Levels() []gpio.Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	levels := make([]gpio.Level, len(o.writes))
	for i, w := range o.writes {
		levels[i] = w.Level
	}
	return levels
}

// Last returns the most recent level, or gpio.Low if nothing was written.
func (o *FakeOutput) Last() gpio.Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.writes) == 0 {
		return gpio.Low
	}
	return o.writes[len(o.writes)-1].Level
}

// Reset forgets the recorded writes.
func (o *FakeOutput) Reset() {
	o.mu.Lock()
	o.writes = nil
	o.mu.Unlock()
}

// FakeInput returns scripted levels, one per Read. Once the script is
// exhausted the idle level is returned forever.
type FakeInput struct {
	mu     sync.Mutex
	idle   gpio.Level
	script []gpio.Level
	reads  int
}

// NewFakeInput returns an input that reads idle until scripted otherwise.
func NewFakeInput(idle gpio.Level) *FakeInput {
	return &FakeInput{idle: idle}
}

// Script queues levels to be returned by the next reads.
func (in *FakeInput) Script(levels ...gpio.Level) {
	in.mu.Lock()
	in.script = append(in.script, levels...)
	in.mu.Unlock()
}

// Set changes the idle level.
func (in *FakeInput) Set(l gpio.Level) {
	in.mu.Lock()
	in.idle = l
	in.mu.Unlock()
}

// Read returns the next scripted level or the idle level.
func (in *FakeInput) Read() gpio.Level {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.reads++
	if len(in.script) > 0 {
		l := in.script[0]
		in.script = in.script[1:]
		return l
	}
	return in.idle
}

// Reads returns how many times Read was called.
func (in *FakeInput) Reads() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.reads
}

// =============================================================================
// Ultrasonic rangefinder
// =============================================================================

// SpeedOfSound in cm/s, matching the rangefinder default.
const SpeedOfSound = 34300.0

// EchoFor returns the echo pulse width an object at cm produces.
func EchoFor(cm float64) time.Duration {
	return time.Duration(cm * 2 / SpeedOfSound * float64(time.Second))
}

// Ultrasonic simulates an HC-SR04 on a FakeClock. The falling edge of the
// trigger arms the echo, which goes high Delay later and stays high for
// Width. Reads are answered from the fake time, so the measured pulse width
// is exact to the rangefinder's poll interval.
type Ultrasonic struct {
	clock *FakeClock

	mu       sync.Mutex
	delay    time.Duration
	width    time.Duration
	silent   bool
	stuck    bool
	armedAt  time.Time
	armed    bool
	prev     gpio.Level
	triggers int

	trigger *FakeOutput
}

// NewUltrasonic returns a sensor that reports an object at cm.
func NewUltrasonic(clock *FakeClock, cm float64) *Ultrasonic {
	u := &Ultrasonic{clock: clock, width: EchoFor(cm), delay: 50 * time.Microsecond}
	u.trigger = NewFakeOutput(clock)
	u.trigger.onOut = u.onTrigger
	return u
}

// Trigger returns the trigger line.
func (u *Ultrasonic) Trigger() *FakeOutput { return u.trigger }

// Echo returns the echo line.
func (u *Ultrasonic) Echo() *UltrasonicEcho { return &UltrasonicEcho{u: u} }

// SetDistance changes the simulated object distance.
func (u *Ultrasonic) SetDistance(cm float64) {
	u.mu.Lock()
	u.width = EchoFor(cm)
	u.silent = false
	u.stuck = false
	u.mu.Unlock()
}

// SetSilent makes the echo never rise (no module attached).
func (u *Ultrasonic) SetSilent() {
	u.mu.Lock()
	u.silent = true
	u.mu.Unlock()
}

// SetStuck makes the echo rise and never fall.
func (u *Ultrasonic) SetStuck() {
	u.mu.Lock()
	u.stuck = true
	u.mu.Unlock()
}

// Triggers returns how many trigger pulses were seen.
func (u *Ultrasonic) Triggers() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.triggers
}

func (u *Ultrasonic) onTrigger(l gpio.Level) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.prev == gpio.High && l == gpio.Low {
		u.armed = true
		u.armedAt = u.clock.Now()
		u.triggers++
	}
	u.prev = l
}

func (u *Ultrasonic) level() gpio.Level {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.armed || u.silent {
		return gpio.Low
	}
	since := u.clock.Now().Sub(u.armedAt)
	if since < u.delay {
		return gpio.Low
	}
	if u.stuck || since < u.delay+u.width {
		return gpio.High
	}
	return gpio.Low
}

// UltrasonicEcho is the echo line of an Ultrasonic.
type UltrasonicEcho struct {
	u *Ultrasonic
}

// Read answers from the fake time.
func (e *UltrasonicEcho) Read() gpio.Level { return e.u.level() }

// =============================================================================
// Bus
// =============================================================================

// FakeBus records every transaction written to it.
type FakeBus struct {
	mu     sync.Mutex
	writes [][]byte
	failAt map[int]bool
	calls  int
	err    error
}

// NewFakeBus returns an empty bus.
func NewFakeBus() *FakeBus {
	return &FakeBus{failAt: make(map[int]bool)}
}

// FailOn makes the n-th Write call (0-based, counting failures) return err.
func (b *FakeBus) FailOn(err error, calls ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
	for _, n := range calls {
		b.failAt[n] = true
	}
}

// Write records p.
func (b *FakeBus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.calls
	b.calls++
	if b.failAt[n] {
		return 0, b.err
	}
	b.writes = append(b.writes, append([]byte(nil), p...))
	return len(p), nil
}

// Bytes returns every successfully written byte in order.
func (b *FakeBus) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []byte
	for _, w := range b.writes {
		out = append(out, w...)
	}
	return out
}

// Calls returns the number of Write calls, including failed ones.
func (b *FakeBus) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Reset forgets recorded writes and failures.
func (b *FakeBus) Reset() {
	b.mu.Lock()
	b.writes = nil
	b.calls = 0
	b.failAt = make(map[int]bool)
	b.mu.Unlock()
}
