package main

import (
	"time"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpark-core/internal/journal"
	"github.com/nerrad567/smartpark-core/internal/parking"
	"github.com/nerrad567/smartpark-core/internal/rangefinder"
)

// mqttBridgeAdapter adapts the infrastructure MQTT client to bridge.MQTTClient.
// The handler signatures differ:
//   - infrastructure mqtt: func(topic string, payload []byte) error
//   - bridge expects:      func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// telemetrySink is the part of influxdb.Client the controller feeds.
type telemetrySink interface {
	WriteDistance(sensorID string, cm float64, present bool, status string)
	WriteAvailability(available, total int)
	WriteBarrierCycle(gate string, d time.Duration)
}

var _ telemetrySink = (*influxdb.Client)(nil)

// telemetryAdapter satisfies parking.Telemetry.
type telemetryAdapter struct {
	client telemetrySink
}

func (a *telemetryAdapter) WriteReadings(readings []rangefinder.Reading) {
	for _, r := range readings {
		a.client.WriteDistance(r.SensorID, r.Centimetres, r.Present(), r.Status.String())
	}
}

func (a *telemetryAdapter) WriteAvailability(available, total int) {
	a.client.WriteAvailability(available, total)
}

func (a *telemetryAdapter) WriteBarrierCycle(gate string, d time.Duration) {
	a.client.WriteBarrierCycle(gate, d)
}

// journalRecorder satisfies parking.Recorder by appending to the journal.
type journalRecorder struct {
	writer interface{ Append(journal.Entry) error }
	bayID  string
	log    *logging.Logger
}

func (r *journalRecorder) Record(e parking.Event) {
	err := r.writer.Append(journal.Entry{
		BayID:     r.bayID,
		Kind:      string(e.Kind),
		SensorID:  e.SensorID,
		Available: e.Available,
		Total:     e.Total,
		Details:   e.Details,
		CreatedAt: e.At,
	})
	if err != nil {
		r.log.Warn("journal append failed", "kind", string(e.Kind), "error", err)
	}
}

// fanout delivers each event to every recorder in order.
type fanout []parking.Recorder

func (f fanout) Record(e parking.Event) {
	for _, r := range f {
		r.Record(e)
	}
}
