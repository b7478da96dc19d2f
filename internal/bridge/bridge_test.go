package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smartpark-core/internal/parking"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	subscribeErr  error
	handlers      map[string]func(topic string, payload []byte)

	// gate, when set, holds every Publish until it is closed.
	gate chan struct{}
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

func testOptions() Options {
	return Options{
		BayID:        "bay-1",
		TriggerTopic: "parking/camera",
		TriggerToken: "start_camera",
		QoS:          1,
		QueueSize:    4,
		Commands:     true,
	}
}

func startBridge(t *testing.T, client *MockMQTTClient, opts Options) *Bridge {
	t.Helper()
	b, err := New(client, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_NilClient(t *testing.T) {
	_, err := New(nil, testOptions())
	if !errors.Is(err, ErrNilClient) {
		t.Errorf("New(nil) error = %v, want ErrNilClient", err)
	}
}

func TestNew_DefaultQueueSize(t *testing.T) {
	opts := testOptions()
	opts.QueueSize = 0
	b, err := New(NewMockMQTTClient(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cap(b.queue) != defaultQueueSize {
		t.Errorf("queue capacity = %d, want %d", cap(b.queue), defaultQueueSize)
	}
}

func TestStart_Twice(t *testing.T) {
	b := startBridge(t, NewMockMQTTClient(), testOptions())
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	client := NewMockMQTTClient()
	client.subscribeErr = errors.New("not connected")
	b, err := New(client, testOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err == nil {
		t.Error("Start() should fail when the command subscription fails")
	}
}

func TestStart_CommandsDisabled(t *testing.T) {
	client := NewMockMQTTClient()
	opts := testOptions()
	opts.Commands = false
	startBridge(t, client, opts)

	if subs := client.GetSubscriptions(); len(subs) != 0 {
		t.Errorf("subscriptions = %v, want none", subs)
	}
}

func TestStop_Idempotent(t *testing.T) {
	b := startBridge(t, NewMockMQTTClient(), testOptions())
	b.Stop()
	b.Stop()
}

// ============================================================================
// Outbound
// ============================================================================

func TestRequestTrigger_PublishesToken(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	b.RequestTrigger()
	waitFor(t, "trigger publish", func() bool { return len(client.GetPublished()) == 1 })

	got := client.GetPublished()[0]
	if got.Topic != "parking/camera" {
		t.Errorf("Topic = %q, want %q", got.Topic, "parking/camera")
	}
	if string(got.Payload) != "start_camera" {
		t.Errorf("Payload = %q, want %q", got.Payload, "start_camera")
	}
	if got.Retained {
		t.Error("trigger must not be retained")
	}
	if got.QoS != 1 {
		t.Errorf("QoS = %d, want 1", got.QoS)
	}
}

func TestPublishStatus_RetainedJSON(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.PublishStatus(parking.Status{Available: 2, Total: 3, Barrier: "closed", UpdatedAt: at})
	waitFor(t, "status publish", func() bool { return len(client.GetPublished()) == 1 })

	got := client.GetPublished()[0]
	if got.Topic != "smartpark/bay-1/state" {
		t.Errorf("Topic = %q, want %q", got.Topic, "smartpark/bay-1/state")
	}
	if !got.Retained {
		t.Error("status must be retained")
	}

	var decoded parking.Status
	if err := json.Unmarshal(got.Payload, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Available != 2 || decoded.Total != 3 || decoded.Barrier != "closed" {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", decoded.UpdatedAt, at)
	}
}

func TestRecord_PublishesEvent(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	b.Record(parking.Event{
		Kind:      parking.EventEntry,
		Available: 1,
		Total:     3,
		Details:   map[string]any{"hold_ms": 5000},
	})
	waitFor(t, "event publish", func() bool { return len(client.GetPublished()) == 1 })

	got := client.GetPublished()[0]
	if got.Topic != "smartpark/bay-1/event/entry" {
		t.Errorf("Topic = %q, want %q", got.Topic, "smartpark/bay-1/event/entry")
	}
	if got.Retained {
		t.Error("events must not be retained")
	}

	var decoded map[string]any
	if err := json.Unmarshal(got.Payload, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["kind"] != "entry" {
		t.Errorf("kind = %v, want entry", decoded["kind"])
	}
}

func TestSend_DisconnectedDrops(t *testing.T) {
	client := NewMockMQTTClient()
	client.SetConnected(false)
	b := startBridge(t, client, testOptions())

	b.RequestTrigger()
	waitFor(t, "drop", func() bool { return b.GetMetrics().Dropped == 1 })

	if n := len(client.GetPublished()); n != 0 {
		t.Errorf("published %d messages while disconnected, want 0", n)
	}

	// No replay once the broker is back.
	client.SetConnected(true)
	b.Stop()
	if n := len(client.GetPublished()); n != 0 {
		t.Errorf("published %d messages after reconnect, want 0", n)
	}
}

func TestSend_PublishErrorCounted(t *testing.T) {
	client := NewMockMQTTClient()
	client.publishErr = errors.New("broker gone")
	b := startBridge(t, client, testOptions())

	b.RequestTrigger()
	waitFor(t, "failure", func() bool { return b.GetMetrics().Failed == 1 })
}

func TestEnqueue_FullQueueDrops(t *testing.T) {
	client := NewMockMQTTClient()
	opts := testOptions()
	opts.QueueSize = 1
	b, err := New(client, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Not started: nothing drains the queue.
	done := make(chan struct{})
	go func() {
		b.PublishStatus(parking.Status{Available: 1, Total: 3})
		b.PublishStatus(parking.Status{Available: 2, Total: 3})
		b.PublishStatus(parking.Status{Available: 3, Total: 3})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishStatus blocked on a full queue")
	}

	if got := b.GetMetrics().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}

	// Stop flushes what was queued.
	b.Stop()
	if n := len(client.GetPublished()); n != 1 {
		t.Errorf("published %d after flush, want 1", n)
	}
}

func TestRequestTrigger_NotCrowdedOutByChatter(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := New(client, testOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		b.PublishStatus(parking.Status{Available: i % 4, Total: 3})
		b.Record(parking.Event{Kind: parking.EventAvailability, Available: i % 4, Total: 3})
	}
	b.RequestTrigger()

	if got := b.GetMetrics().Dropped; got != 36 {
		t.Errorf("Dropped = %d, want 36 (chatter only)", got)
	}

	b.Stop()
	published := client.GetPublished()
	if len(published) == 0 {
		t.Fatal("nothing published after flush")
	}
	if published[0].Topic != "parking/camera" || string(published[0].Payload) != "start_camera" {
		t.Errorf("first publish = %s %q, want the camera trigger", published[0].Topic, published[0].Payload)
	}
}

func TestRequestTrigger_JumpsQueueWhileBrokerStalls(t *testing.T) {
	client := NewMockMQTTClient()
	client.gate = make(chan struct{})
	b := startBridge(t, client, testOptions())

	// The first status is taken by run and held in Publish.
	b.PublishStatus(parking.Status{Available: 0, Total: 3})
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 20; i++ {
		b.Record(parking.Event{Kind: parking.EventEntry, Available: 0, Total: 3})
	}
	b.RequestTrigger()
	close(client.gate)

	waitFor(t, "camera trigger", func() bool {
		for _, p := range client.GetPublished() {
			if p.Topic == "parking/camera" {
				return true
			}
		}
		return false
	})

	published := client.GetPublished()
	if len(published) < 2 || published[1].Topic != "parking/camera" {
		t.Errorf("trigger should follow the in-flight status, got order %v", topicsOf(published))
	}
}

func topicsOf(ps []mockPublish) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Topic
	}
	return out
}

// ============================================================================
// Inbound
// ============================================================================

func TestCommands_Delivered(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	subs := client.GetSubscriptions()
	if len(subs) != 1 || subs[0].Topic != "smartpark/bay-1/command" {
		t.Fatalf("subscriptions = %v, want smartpark/bay-1/command", subs)
	}

	client.SimulateMessage("smartpark/bay-1/command", []byte(`{"command":"open_barrier"}`))
	client.SimulateMessage("smartpark/bay-1/command", []byte("refresh_display\n"))

	want := []parking.Command{parking.CommandOpenBarrier, parking.CommandRefreshDisplay}
	for _, w := range want {
		select {
		case got := <-b.Commands():
			if got != w {
				t.Errorf("command = %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("command %q not delivered", w)
		}
	}
}

func TestCommands_InvalidRejected(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	client.SimulateMessage("smartpark/bay-1/command", []byte("launch_rockets"))
	client.SimulateMessage("smartpark/bay-1/command", []byte(`{"command":`))

	select {
	case cmd := <-b.Commands():
		t.Errorf("unexpected command %q", cmd)
	default:
	}
	if got := b.GetMetrics().CommandsRejected; got != 2 {
		t.Errorf("CommandsRejected = %d, want 2", got)
	}
}

func TestCommands_FullChannelDrops(t *testing.T) {
	client := NewMockMQTTClient()
	b := startBridge(t, client, testOptions())

	for range commandChannelSize + 3 {
		client.SimulateMessage("smartpark/bay-1/command", []byte("open_barrier"))
	}

	m := b.GetMetrics()
	if m.CommandsReceived != commandChannelSize+3 {
		t.Errorf("CommandsReceived = %d, want %d", m.CommandsReceived, commandChannelSize+3)
	}
	if m.CommandsRejected != 3 {
		t.Errorf("CommandsRejected = %d, want 3", m.CommandsRejected)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    parking.Command
		wantErr bool
	}{
		{"bare", "open_barrier", parking.CommandOpenBarrier, false},
		{"bare with whitespace", "  refresh_display \n", parking.CommandRefreshDisplay, false},
		{"json", `{"command":"open_barrier"}`, parking.CommandOpenBarrier, false},
		{"json unknown", `{"command":"reboot"}`, "", true},
		{"json malformed", `{"command"`, "", true},
		{"empty", "", "", true},
		{"unknown", "close_barrier", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownIsSentinel(t *testing.T) {
	_, err := ParseCommand([]byte("reboot"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("error = %v, want ErrUnknownCommand", err)
	}
}
