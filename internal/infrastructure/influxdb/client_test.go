package influxdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/config"
)

// testConfig matches the local development InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "smartpark-dev-token",
		Org:           "smartpark",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") != "" {
		return
	}
	client, err := Connect(testConfig(), "test-bay")
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	client.Close() //nolint:errcheck // connectivity check only
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg, "bay-1")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(cfg, "bay-1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c, _ := newTestClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_Live(t *testing.T) {
	skipIfNoInfluxDB(t)

	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client, err := Connect(cfg, "test-bay")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	errCh := make(chan error, 4)
	client.SetOnError(func(err error) { errCh <- err })

	client.WriteDistance("spot-1", 5.5, true, "ok")
	client.WriteAvailability(2, 3)
	client.WriteBarrierCycle("entrance", 6*time.Second)
	client.Flush()

	select {
	case err := <-errCh:
		t.Errorf("write error = %v", err)
	case <-time.After(500 * time.Millisecond):
	}
}
