package parking

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/smartpark-core/internal/display"
	"github.com/nerrad567/smartpark-core/internal/hal"
	"github.com/nerrad567/smartpark-core/internal/rangefinder"
)

// Config holds the controller's thresholds and timing.
type Config struct {
	// TotalSpots is the number of monitored spots. The first reading of
	// every MeasureAll is the trigger spot.
	TotalSpots int

	DetectionDistance  float64 // cm; at or below is occupied
	JustParkedDistance float64 // cm; below on the trigger spot raises the camera trigger
	ProximityWarning   float64 // cm; 0 disables

	BarrierHold  time.Duration
	LoopInterval time.Duration

	Label        string
	OfflineLabel string
}

// DefaultConfig matches the reference three-spot bay.
func DefaultConfig() Config {
	return Config{
		TotalSpots:         3,
		DetectionDistance:  3,
		JustParkedDistance: 9,
		BarrierHold:        5 * time.Second,
		LoopInterval:       200 * time.Millisecond,
		Label:              "Parking Spaces",
		OfflineLabel:       "System Offline",
	}
}

// Controller is the bay's control loop. It owns the availability count and
// the trigger flag; nothing else mutates them.
//
// Thread Safety:
//   - Run must be called from one goroutine. Status and Available may be
//     called from any goroutine.
type Controller struct {
	cfg     Config
	clock   hal.Clock
	ranger  Ranger
	edges   EdgeSource
	barrier Barrier
	display Display
	logger  Logger

	publisher Publisher
	telemetry Telemetry
	recorder  Recorder
	commands  <-chan Command

	state   stateBox
	trigger TriggerFlag
}

// New creates a Controller.
//
// Parameters:
//   - cfg: Thresholds and timing
//   - clock: Time source for waits
//   - ranger: Spot sensors, trigger spot first
//   - edges: Break-beam edge detector with InputEntrance and InputExit registered
//   - gate: Barrier actuator
//   - panel: Character display
//   - logger: Logger instance (may be nil)
func New(cfg Config, clock hal.Clock, ranger Ranger, edges EdgeSource, gate Barrier, panel Display, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Controller{
		cfg:     cfg,
		clock:   clock,
		ranger:  ranger,
		edges:   edges,
		barrier: gate,
		display: panel,
		logger:  logger,
	}
	c.state.set(cfg.TotalSpots)
	return c
}

// SetPublisher sets the outbound message sink. nil disables publishing.
func (c *Controller) SetPublisher(p Publisher) { c.publisher = p }

// SetTelemetry sets the time-series sink. nil disables telemetry.
func (c *Controller) SetTelemetry(t Telemetry) { c.telemetry = t }

// SetRecorder sets the journal sink. nil disables the journal.
func (c *Controller) SetRecorder(r Recorder) { c.recorder = r }

// SetCommands sets the inbound command channel. nil disables commands.
func (c *Controller) SetCommands(ch <-chan Command) { c.commands = ch }

// Available returns the current free spot count.
func (c *Controller) Available() int { return c.state.get() }

// Triggered reports whether the camera trigger is currently asserted.
func (c *Controller) Triggered() bool { return c.trigger.IsSet() }

// Status returns a snapshot of the bay's state.
func (c *Controller) Status() Status {
	return Status{
		Available: c.state.get(),
		Total:     c.cfg.TotalSpots,
		Barrier:   c.barrier.State().String(),
		Triggered: c.trigger.IsSet(),
		UpdatedAt: c.clock.Now().UTC(),
	}
}

// Run executes the control loop until ctx is cancelled. On every exit path
// the barrier is driven closed and the panel shows the offline message.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()

	c.startup()

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.step(ctx)
		if !c.wait(ctx, c.cfg.LoopInterval) {
			return nil
		}
	}
}

func (c *Controller) startup() {
	defer c.recoverPanic("startup")

	c.logger.Info("control loop starting",
		"spots", c.cfg.TotalSpots,
		"loop_interval", c.cfg.LoopInterval.String(),
	)

	c.safely("display init", c.display.Init)

	readings := c.measure()
	c.state.set(c.countAvailable(readings))
	c.render()
	c.publishStatus()

	c.record(Event{Kind: EventStartup, Available: c.state.get()})
}

// step runs one iteration. A panic in any subsystem is logged and the loop
// carries on with the next iteration.
func (c *Controller) step(ctx context.Context) {
	defer c.recoverPanic("control iteration")

	c.drainCommands(ctx)
	if ctx.Err() != nil {
		return
	}

	c.handleEntrance(ctx)
	if ctx.Err() != nil {
		return
	}

	c.handleExit(ctx)
	if ctx.Err() != nil {
		return
	}

	c.monitor()
}

func (c *Controller) handleEntrance(ctx context.Context) {
	rising, err := c.edges.Poll(InputEntrance)
	if err != nil {
		c.logger.Error("entrance sensor poll failed", "error", err)
		return
	}
	if !rising {
		return
	}

	c.logger.Info("vehicle at entrance")
	c.cycleBarrier(ctx, EventEntry)

	readings := c.measure()
	c.setAvailable(c.countAvailable(readings))
	c.render()

	if c.justParked(readings) {
		if c.trigger.Assert() {
			c.logger.Info("vehicle parked on trigger spot, requesting camera", "sensor", readings[0].SensorID)
			if c.publisher != nil {
				c.publisher.RequestTrigger()
			}
			c.record(Event{
				Kind:      EventCameraTrigger,
				SensorID:  readings[0].SensorID,
				Available: c.state.get(),
				Details:   map[string]any{"distance_cm": readings[0].Centimetres},
			})
		}
	} else {
		c.trigger.Clear()
	}
	c.publishStatus()
}

func (c *Controller) handleExit(ctx context.Context) {
	rising, err := c.edges.Poll(InputExit)
	if err != nil {
		c.logger.Error("exit sensor poll failed", "error", err)
		return
	}
	if !rising {
		return
	}

	c.logger.Info("vehicle at exit")
	c.cycleBarrier(ctx, EventExit)

	if available := c.state.get(); available < c.cfg.TotalSpots {
		c.setAvailable(available + 1)
		c.render()
	}
	c.publishStatus()
}

// monitor is the steady-state re-measure. The panel is only redrawn when the
// count changes.
func (c *Controller) monitor() {
	readings := c.measure()

	if !c.justParked(readings) && c.trigger.Clear() {
		c.logger.Debug("trigger spot vacated, camera trigger re-armed")
		c.publishStatus()
	}

	if c.setAvailable(c.countAvailable(readings)) {
		c.render()
		c.publishStatus()
	}
}

func (c *Controller) drainCommands(ctx context.Context) {
	for {
		select {
		case cmd, ok := <-c.commands:
			if !ok {
				c.commands = nil
				return
			}
			c.handleCommand(ctx, cmd)
			if ctx.Err() != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd Command) {
	c.record(Event{Kind: EventCommand, Available: c.state.get(), Details: map[string]any{"command": string(cmd)}})

	switch cmd {
	case CommandOpenBarrier:
		c.logger.Info("manual barrier cycle requested")
		c.cycleBarrier(ctx, EventManualOpen)
		readings := c.measure()
		c.setAvailable(c.countAvailable(readings))
		c.render()
		c.publishStatus()
	case CommandRefreshDisplay:
		c.render()
	default:
		c.logger.Warn("ignoring unknown command", "command", string(cmd))
	}
}

// cycleBarrier opens the arm, holds it, and closes it. Cancellation cuts the
// hold short but the arm is still closed.
func (c *Controller) cycleBarrier(ctx context.Context, kind EventKind) {
	start := c.clock.Now()

	if err := c.barrier.Open(); err != nil {
		// The pulse train may have stopped with the arm part way up while
		// the tracked state still reads closed.
		c.logger.Error("barrier open failed", "gate", string(kind), "error", err)
		c.safely("barrier cleanup", c.barrier.Cleanup)
		c.publishStatus()
		return
	}
	c.publishStatus()

	c.wait(ctx, c.cfg.BarrierHold)

	if err := c.barrier.Close(); err != nil {
		c.logger.Error("barrier close failed", "gate", string(kind), "error", err)
	}

	duration := c.clock.Now().Sub(start)
	if c.telemetry != nil {
		c.telemetry.WriteBarrierCycle(string(kind), duration)
	}
	c.record(Event{
		Kind:      kind,
		Available: c.state.get(),
		Details:   map[string]any{"duration_ms": duration.Milliseconds()},
	})
}

func (c *Controller) measure() []rangefinder.Reading {
	readings := c.ranger.MeasureAll()

	for _, r := range readings {
		if c.cfg.ProximityWarning > 0 && r.Present() && r.Centimetres < c.cfg.ProximityWarning {
			c.logger.Warn("object very close to sensor", "sensor", r.SensorID, "distance_cm", r.Centimetres)
		}
	}
	c.logger.Debug("spot readings", "readings", formatReadings(readings))

	if c.telemetry != nil {
		c.telemetry.WriteReadings(readings)
	}
	return readings
}

// countAvailable counts spots with no object inside the detection distance.
// A timed-out sensor counts as free.
func (c *Controller) countAvailable(readings []rangefinder.Reading) int {
	free := 0
	for _, r := range readings {
		if !r.Present() || r.Centimetres > c.cfg.DetectionDistance {
			free++
		}
	}
	// A spot missing from the readings is unknown, not free.
	if free > c.cfg.TotalSpots {
		free = c.cfg.TotalSpots
	}
	return free
}

// justParked reports whether the trigger spot holds a vehicle inside the
// just-parked band.
func (c *Controller) justParked(readings []rangefinder.Reading) bool {
	if len(readings) == 0 {
		return false
	}
	r := readings[0]
	return r.Present() && r.Centimetres < c.cfg.JustParkedDistance
}

// setAvailable stores n, clamped to [0, TotalSpots], and reports whether the
// value changed.
func (c *Controller) setAvailable(n int) bool {
	if n < 0 {
		n = 0
	}
	if n > c.cfg.TotalSpots {
		n = c.cfg.TotalSpots
	}
	prev := c.state.swap(n)
	if prev == n {
		return false
	}

	c.logger.Info("availability changed", "available", n, "previous", prev, "total", c.cfg.TotalSpots)
	if c.telemetry != nil {
		c.telemetry.WriteAvailability(n, c.cfg.TotalSpots)
	}
	c.record(Event{Kind: EventAvailability, Available: n, Details: map[string]any{"previous": prev}})
	return true
}

func (c *Controller) render() {
	buf := display.Buffer{
		c.cfg.Label,
		fmt.Sprintf("Available: %d/%d", c.state.get(), c.cfg.TotalSpots),
	}
	if err := c.display.Render(buf); err != nil {
		c.logger.Warn("display update incomplete", "error", err)
	}
}

func (c *Controller) publishStatus() {
	if c.publisher != nil {
		c.publisher.PublishStatus(c.Status())
	}
}

func (c *Controller) record(e Event) {
	if c.recorder == nil {
		return
	}
	e.Total = c.cfg.TotalSpots
	if e.At.IsZero() {
		e.At = c.clock.Now().UTC()
	}
	c.recorder.Record(e)
}

// wait blocks for d or until ctx is cancelled. It reports whether the full
// duration elapsed.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return ctx.Err() == nil
	}
}

// shutdown leaves the hardware safe. Each step runs even if an earlier one
// failed or panicked.
func (c *Controller) shutdown() {
	c.logger.Info("control loop stopping, leaving hardware safe")

	c.safely("barrier cleanup", c.barrier.Cleanup)
	c.safely("display clear", c.display.Clear)
	c.safely("display offline message", func() error {
		return c.display.WriteLine(c.cfg.OfflineLabel, 1)
	})
	c.safely("display offline message", func() error {
		return c.display.WriteLine("", 2)
	})

	c.record(Event{Kind: EventShutdown, Available: c.state.get()})
	c.logger.Info("control loop stopped")
}

// recoverPanic must be deferred directly.
func (c *Controller) recoverPanic(where string) {
	if r := recover(); r != nil {
		c.logger.Error(where+" panic recovered", "panic", r)
	}
}

func (c *Controller) safely(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(what+" panicked", "panic", r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warn(what+" failed", "error", err)
	}
}

func formatReadings(readings []rangefinder.Reading) []string {
	out := make([]string, len(readings))
	for i, r := range readings {
		if r.Present() {
			out[i] = fmt.Sprintf("%s=%.2fcm", r.SensorID, r.Centimetres)
		} else {
			out[i] = fmt.Sprintf("%s=%s", r.SensorID, r.Status)
		}
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
