package parking

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/smartpark-core/internal/barrier"
	"github.com/nerrad567/smartpark-core/internal/display"
	"github.com/nerrad567/smartpark-core/internal/rangefinder"
)

// Edge input identifiers registered with the EdgeSource.
const (
	InputEntrance = "entrance"
	InputExit     = "exit"
)

// Ranger measures every spot sensor in spot order.
type Ranger interface {
	MeasureAll() []rangefinder.Reading
}

// EdgeSource reports rising edges on the break-beam inputs.
type EdgeSource interface {
	Poll(id string) (bool, error)
}

// Barrier is the entry/exit arm.
type Barrier interface {
	Open() error
	Close() error
	Cleanup() error
	State() barrier.State
}

// Display is the bay's character panel.
type Display interface {
	Init() error
	Render(buf display.Buffer) error
	WriteLine(text string, line int) error
	Clear() error
}

// Publisher hands outbound messages to the network side. Both methods must
// return immediately; the control loop never waits on the network.
type Publisher interface {
	// RequestTrigger asks for one camera trigger token to be published.
	RequestTrigger()

	// PublishStatus publishes the bay's current status.
	PublishStatus(s Status)
}

// Telemetry receives time-series samples. Implementations must not block.
type Telemetry interface {
	WriteReadings(readings []rangefinder.Reading)
	WriteAvailability(available, total int)
	WriteBarrierCycle(gate string, duration time.Duration)
}

// Recorder appends events to the bay journal. Implementations must not block.
type Recorder interface {
	Record(e Event)
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Command is an operator request delivered from the network side.
type Command string

const (
	// CommandOpenBarrier runs one manual barrier cycle.
	CommandOpenBarrier Command = "open_barrier"

	// CommandRefreshDisplay redraws the panel from current state.
	CommandRefreshDisplay Command = "refresh_display"
)

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	switch c {
	case CommandOpenBarrier, CommandRefreshDisplay:
		return true
	default:
		return false
	}
}

// Status is the externally visible state of the bay.
type Status struct {
	Available int       `json:"available"`
	Total     int       `json:"total"`
	Barrier   string    `json:"barrier"`
	Triggered bool      `json:"triggered"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventKind classifies journal events.
type EventKind string

const (
	EventStartup       EventKind = "startup"
	EventShutdown      EventKind = "shutdown"
	EventEntry         EventKind = "entry"
	EventExit          EventKind = "exit"
	EventManualOpen    EventKind = "manual_open"
	EventAvailability  EventKind = "availability"
	EventCameraTrigger EventKind = "camera_trigger"
	EventCommand       EventKind = "command"
)

// Event is one journal entry produced by the controller.
type Event struct {
	Kind      EventKind
	SensorID  string
	Available int
	Total     int
	Details   map[string]any
	At        time.Time
}

// TriggerFlag remembers whether the camera trigger has been raised for the
// car currently on the trigger spot. Only the false to true transition
// publishes, so a parked car produces exactly one token.
type TriggerFlag struct {
	v atomic.Bool
}

// Assert sets the flag and reports whether it was previously clear.
func (f *TriggerFlag) Assert() bool {
	return f.v.CompareAndSwap(false, true)
}

// Clear resets the flag and reports whether it was previously set.
func (f *TriggerFlag) Clear() bool {
	return f.v.CompareAndSwap(true, false)
}

// IsSet reports the current value.
func (f *TriggerFlag) IsSet() bool {
	return f.v.Load()
}
