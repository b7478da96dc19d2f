// Package influxdb writes the bay's telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API. Points are batched by
// the library and flushed on its own goroutine, so every Write* method
// returns immediately and is safe to call from the control loop. Write
// failures surface through the SetOnError callback.
//
// Measurements (every point carries a "bay" tag):
//
//	distance      tags: sensor, status   fields: cm, present
//	availability                         fields: available, occupied, total
//	barrier_cycle tags: gate             fields: duration_ms
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Bay.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
package influxdb
