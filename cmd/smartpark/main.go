// SmartPark bay controller.
//
// This is the entry point for one parking bay: three spot rangefinders,
// entrance and exit break-beams, a servo barrier, a 16x2 status panel and an
// MQTT link to the bay camera node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/smartpark-core/internal/barrier"
	"github.com/nerrad567/smartpark-core/internal/bridge"
	"github.com/nerrad567/smartpark-core/internal/display"
	"github.com/nerrad567/smartpark-core/internal/edge"
	"github.com/nerrad567/smartpark-core/internal/hal"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpark-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpark-core/internal/journal"
	"github.com/nerrad567/smartpark-core/internal/parking"
	"github.com/nerrad567/smartpark-core/internal/rangefinder"
	"github.com/nerrad567/smartpark-core/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting SmartPark",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("bay", cfg.Bay.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"spots", cfg.TotalSpots(),
		"level", cfg.Logging.Level,
	)

	board, err := hal.Open(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer func() {
		log.Info("releasing hardware")
		if closeErr := board.Close(); closeErr != nil {
			log.Error("error releasing hardware", "error", closeErr)
		}
	}()
	log.Info("hardware opened",
		"i2c_bus", cfg.Hardware.I2CBus,
		"display_address", fmt.Sprintf("0x%02x", cfg.Hardware.DisplayAddress),
	)

	ctrl := newController(cfg, board, hal.SystemClock{}, log)
	var recorders fanout

	// Event journal (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		var writer *journal.Writer
		db, writer, err = openJournal(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := writer.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		recorders = append(recorders, &journalRecorder{writer: writer, bayID: cfg.Bay.ID, log: log})
	} else {
		log.Info("journal disabled")
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Bay.ID)
		if err != nil {
			// Telemetry is optional; the bay runs without it.
			log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
			influxClient = nil
		}
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		ctrl.SetTelemetry(&telemetryAdapter{client: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
	}

	// MQTT is required: the camera trigger has no other path.
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Bay.ID)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected, camera triggers will be dropped until reconnect", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	br, err := startBridge(ctx, cfg, mqttClient, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	ctrl.SetPublisher(br)
	if cfg.Trigger.Commands {
		ctrl.SetCommands(br.Commands())
	}
	recorders = append(recorders, br)
	ctrl.SetRecorder(recorders)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Blocks until the shutdown signal. Run drives the barrier closed and
	// shows the offline message before returning; the deferred closes then
	// run in reverse order.
	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("control loop: %w", err)
	}

	log.Info("SmartPark stopped")
	return nil
}

// getConfigPath returns SMARTPARK_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("SMARTPARK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newController wires the sensing, actuation and display layers on top of
// an opened board.
func newController(cfg *config.Config, board *hal.Board, clock hal.Clock, log *logging.Logger) *parking.Controller {
	sensors := make([]rangefinder.Sensor, 0, len(board.Rangefinders))
	for _, pins := range board.Rangefinders {
		sensors = append(sensors, rangefinder.Sensor{ID: pins.ID, Trigger: pins.Trigger, Echo: pins.Echo})
	}
	ranger := rangefinder.New(clock, rangefinder.Config{
		TriggerPulse: cfg.Sensing.TriggerPulse,
		EchoTimeout:  cfg.Sensing.EchoTimeout,
		PollInterval: cfg.Sensing.PollInterval,
		Settle:       cfg.Sensing.Settle,
		MinValid:     cfg.Sensing.MinValid,
		MaxValid:     cfg.Sensing.MaxValid,
		SpeedOfSound: cfg.Sensing.SpeedOfSound,
	}, sensors...)
	ranger.SetLogger(log)

	edges := edge.NewDetector()
	edges.Register(parking.InputEntrance, board.Entrance, cfg.Hardware.IRActiveLow)
	edges.Register(parking.InputExit, board.Exit, cfg.Hardware.IRActiveLow)

	servo := barrier.NewSoftPWM(clock, board.Servo, barrier.PWMConfig{
		Period:  cfg.Barrier.Period,
		MinDuty: cfg.Barrier.MinDuty,
		MaxDuty: cfg.Barrier.MaxDuty,
		Pulses:  cfg.Barrier.Pulses,
	})
	gate := barrier.NewActuator(servo)
	gate.SetLogger(log)

	panel := display.NewDriver(board.Display, clock, display.Config{
		Width:        cfg.Display.Width,
		Backlight:    cfg.Display.Backlight,
		EnablePulse:  cfg.Display.EnablePulse,
		EnableSettle: cfg.Display.EnableSettle,
	})
	panel.SetLogger(log)

	return parking.New(parking.Config{
		TotalSpots:         cfg.TotalSpots(),
		DetectionDistance:  cfg.Sensing.DetectionDistance,
		JustParkedDistance: cfg.Sensing.JustParkedDistance,
		ProximityWarning:   cfg.Sensing.ProximityWarning,
		BarrierHold:        cfg.Barrier.Hold,
		LoopInterval:       cfg.Loop.Interval,
		Label:              cfg.Display.Label,
		OfflineLabel:       cfg.Display.OfflineLabel,
	}, clock, ranger, edges, gate, panel, log)
}

// openJournal opens the database, applies migrations and starts the
// journal writer.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *journal.Writer, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("journal ready", "path", cfg.Database.Path)

	writer := journal.NewWriter(journal.NewSQLiteRepository(db.DB), cfg.Database.QueueSize, log)
	return db, writer, nil
}

// startBridge builds the MQTT bridge and subscribes to bay commands.
func startBridge(ctx context.Context, cfg *config.Config, client *mqtt.Client, log *logging.Logger) (*bridge.Bridge, error) {
	br, err := bridge.New(&mqttBridgeAdapter{client: client}, bridge.Options{
		BayID:        cfg.Bay.ID,
		TriggerTopic: cfg.Trigger.Topic,
		TriggerToken: cfg.Trigger.Token,
		QoS:          byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		QueueSize:    cfg.Trigger.QueueSize,
		Commands:     cfg.Trigger.Commands,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	br.SetLogger(log)

	if err := br.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	return br, nil
}

// healthCheck verifies the infrastructure connections. db and influxClient
// may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
