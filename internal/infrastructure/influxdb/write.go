package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDistance     = "distance"
	MeasurementAvailability = "availability"
	MeasurementBarrierCycle = "barrier_cycle"
)

// WriteDistance records one rangefinder reading. cm is ignored when the
// reading is not present.
func (c *Client) WriteDistance(sensorID string, cm float64, present bool, status string) {
	fields := map[string]any{"present": present}
	if present {
		fields["cm"] = cm
	}
	c.writePoint(MeasurementDistance,
		map[string]string{"sensor": sensorID, "status": status},
		fields)
}

// WriteAvailability records the free spot count.
func (c *Client) WriteAvailability(available, total int) {
	c.writePoint(MeasurementAvailability, nil, map[string]any{
		"available": available,
		"occupied":  total - available,
		"total":     total,
	})
}

// WriteBarrierCycle records one open-hold-close cycle of the barrier. gate is
// the input that caused it (entrance, exit or manual).
func (c *Client) WriteBarrierCycle(gate string, d time.Duration) {
	c.writePoint(MeasurementBarrierCycle,
		map[string]string{"gate": gate},
		map[string]any{"duration_ms": d.Milliseconds()})
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
