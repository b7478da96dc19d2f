//go:build integration

package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/config"
)

// Integration tests against a live broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("smartpark-int-connect"), "bay-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !errors.Is(client.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() after Close() should return ErrNotConnected")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := integrationConfig("smartpark-int-refused")
	cfg.Broker.Port = 19998

	// ConnectRetry keeps paho retrying, so this returns on the connect timeout.
	_, err := Connect(cfg, "bay-int")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_TriggerRoundtrip(t *testing.T) {
	client, err := Connect(integrationConfig("smartpark-int-roundtrip"), "bay-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := "parking/camera/int-test"
	received := make(chan string, 1)

	err = client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe()")
	}

	time.Sleep(100 * time.Millisecond)

	if err := client.Publish(topic, []byte("start_camera"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "start_camera" {
			t.Errorf("received %q, want %q", got, "start_camera")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestIntegration_RetainedState(t *testing.T) {
	client, err := Connect(integrationConfig("smartpark-int-retained"), "bay-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := Topics{}.BayState("bay-int")
	if err := client.Publish(topic, []byte(`{"available":3,"total":3}`), 1, true); err != nil {
		t.Fatalf("Publish(retained) error = %v", err)
	}

	received := make(chan struct{}, 1)
	err = client.Subscribe(topic, 1, func(string, []byte) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Error("retained state not delivered to new subscriber")
	}
}
