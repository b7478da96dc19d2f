package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpark-core/internal/parking"
)

const (
	defaultQueueSize   = 16
	commandChannelSize = 8

	// triggerQueueSize is separate from the status/event queue so chatter
	// can never crowd out a camera start.
	triggerQueueSize = 4
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it through an adapter in main.go.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	// BayID scopes the status and command topics.
	BayID string

	// TriggerTopic and TriggerToken form the camera trigger contract.
	TriggerTopic string
	TriggerToken string

	// QoS for every publish and subscription.
	QoS byte

	// QueueSize bounds pending outbound messages. Zero uses the default.
	QueueSize int

	// Commands enables the inbound command subscription.
	Commands bool
}

// Metrics is a snapshot of bridge counters.
type Metrics struct {
	Published        uint64
	Dropped          uint64
	Failed           uint64
	CommandsReceived uint64
	CommandsRejected uint64
}

type outbound struct {
	topic    string
	payload  []byte
	retained bool
	kind     string
}

// Bridge moves messages between the control loop and the broker.
type Bridge struct {
	client MQTTClient
	opts   Options
	logger Logger

	triggers chan outbound
	queue    chan outbound
	commands chan parking.Command

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped sync.Once

	published        atomic.Uint64
	dropped          atomic.Uint64
	failed           atomic.Uint64
	commandsReceived atomic.Uint64
	commandsRejected atomic.Uint64
}

// New creates a bridge. Call Start before use.
func New(client MQTTClient, opts Options) (*Bridge, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	return &Bridge{
		client:   client,
		opts:     opts,
		logger:   nopLogger{},
		triggers: make(chan outbound, triggerQueueSize),
		queue:    make(chan outbound, opts.QueueSize),
		commands: make(chan parking.Command, commandChannelSize),
		stopCh:   make(chan struct{}),
	}, nil
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	b.logger = logger
}

// Start subscribes to the command topic (if enabled) and starts the publish
// goroutine. The goroutine runs until Stop is called or ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if b.opts.Commands {
		topic := mqtt.Topics{}.BayCommand(b.opts.BayID)
		if err := b.client.Subscribe(topic, b.opts.QoS, b.handleCommand); err != nil {
			b.started.Store(false)
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		b.logger.Info("subscribed to bay commands", "topic", topic)
	}

	b.wg.Add(1)
	go b.run(ctx)

	b.logger.Info("bridge started",
		"trigger_topic", b.opts.TriggerTopic,
		"queue_size", cap(b.queue),
	)
	return nil
}

// Stop halts the publish goroutine and flushes whatever is still queued.
// Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopped.Do(func() {
		close(b.stopCh)
		b.wg.Wait()
		b.flush()
		m := b.GetMetrics()
		b.logger.Info("bridge stopped",
			"published", m.Published,
			"dropped", m.Dropped,
			"failed", m.Failed,
		)
	})
}

// Commands returns the channel of validated inbound commands.
func (b *Bridge) Commands() <-chan parking.Command {
	return b.commands
}

// RequestTrigger queues one camera trigger token. It never blocks. Triggers
// have their own queue and are sent ahead of status and events.
func (b *Bridge) RequestTrigger() {
	b.push(b.triggers, outbound{
		topic:   b.opts.TriggerTopic,
		payload: []byte(b.opts.TriggerToken),
		kind:    "trigger",
	})
}

// PublishStatus queues a retained status message. It never blocks.
func (b *Bridge) PublishStatus(s parking.Status) {
	payload, err := json.Marshal(s)
	if err != nil {
		b.logger.Error("marshalling status", "error", err)
		return
	}
	b.enqueue(outbound{
		topic:    mqtt.Topics{}.BayState(b.opts.BayID),
		payload:  payload,
		retained: true,
		kind:     "status",
	})
}

// eventMessage is the JSON form of a controller event.
type eventMessage struct {
	Kind      string         `json:"kind"`
	SensorID  string         `json:"sensor_id,omitempty"`
	Available int            `json:"available"`
	Total     int            `json:"total"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

// Record queues a controller event for smartpark/{bay}/event/{kind}. It
// satisfies parking.Recorder and never blocks.
func (b *Bridge) Record(e parking.Event) {
	payload, err := json.Marshal(eventMessage{
		Kind:      string(e.Kind),
		SensorID:  e.SensorID,
		Available: e.Available,
		Total:     e.Total,
		Details:   e.Details,
		At:        e.At,
	})
	if err != nil {
		b.logger.Error("marshalling event", "kind", string(e.Kind), "error", err)
		return
	}
	b.enqueue(outbound{
		topic:   mqtt.Topics{}.BayEvent(b.opts.BayID, string(e.Kind)),
		payload: payload,
		kind:    "event",
	})
}

// GetMetrics returns a snapshot of the bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Published:        b.published.Load(),
		Dropped:          b.dropped.Load(),
		Failed:           b.failed.Load(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsRejected: b.commandsRejected.Load(),
	}
}

func (b *Bridge) enqueue(msg outbound) {
	b.push(b.queue, msg)
}

func (b *Bridge) push(q chan<- outbound, msg outbound) {
	select {
	case q <- msg:
	default:
		b.dropped.Add(1)
		b.logger.Warn("publish queue full, dropping message",
			"kind", msg.kind,
			"topic", msg.topic,
		)
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.triggers:
			b.send(msg)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case msg := <-b.triggers:
			b.send(msg)
		case msg := <-b.queue:
			b.send(msg)
		}
	}
}

// flush publishes queued messages without waiting for new ones, triggers
// first.
func (b *Bridge) flush() {
	for {
		select {
		case msg := <-b.triggers:
			b.send(msg)
			continue
		default:
		}
		select {
		case msg := <-b.queue:
			b.send(msg)
		default:
			return
		}
	}
}

func (b *Bridge) send(msg outbound) {
	if !b.client.IsConnected() {
		b.dropped.Add(1)
		b.logger.Error("broker disconnected, dropping message",
			"kind", msg.kind,
			"topic", msg.topic,
		)
		return
	}

	if err := b.client.Publish(msg.topic, msg.payload, b.opts.QoS, msg.retained); err != nil {
		b.failed.Add(1)
		b.logger.Error("publish failed",
			"kind", msg.kind,
			"topic", msg.topic,
			"error", err,
		)
		return
	}

	b.published.Add(1)
	b.logger.Debug("published", "kind", msg.kind, "topic", msg.topic)
}

// handleCommand runs on the MQTT client's goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		b.commandsRejected.Add(1)
		b.logger.Warn("rejecting command", "topic", topic, "error", err)
		return
	}

	b.commandsReceived.Add(1)
	select {
	case b.commands <- cmd:
		b.logger.Debug("command received", "command", string(cmd))
	default:
		b.commandsRejected.Add(1)
		b.logger.Warn("command channel full, dropping command", "command", string(cmd))
	}
}

// commandMessage is the JSON command form: {"command": "open_barrier"}.
type commandMessage struct {
	Command string `json:"command"`
}

// ParseCommand decodes a command payload. Both the JSON form and a bare
// command name are accepted.
func ParseCommand(payload []byte) (parking.Command, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var msg commandMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return "", fmt.Errorf("parsing command: %w", err)
		}
		raw = strings.TrimSpace(msg.Command)
	}

	cmd := parking.Command(raw)
	if !cmd.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, raw)
	}
	return cmd, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
