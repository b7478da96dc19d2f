package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bay controller's full configuration, one field per YAML
// section.
type Config struct {
	Bay      BayConfig      `yaml:"bay"`
	Hardware HardwareConfig `yaml:"hardware"`
	Sensing  SensingConfig  `yaml:"sensing"`
	Barrier  BarrierConfig  `yaml:"barrier"`
	Display  DisplayConfig  `yaml:"display"`
	Loop     LoopConfig     `yaml:"loop"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BayConfig identifies the parking bay this controller operates.
type BayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// HardwareConfig is the pin map and display bus wiring.
//
// Pin names are resolved through periph's gpioreg registry, so both
// "GPIO23" and board aliases such as "P1_16" are accepted.
type HardwareConfig struct {
	// Rangefinders lists the ultrasonic sensors in spot order. The first entry
	// is the spot nearest the entrance and drives the camera trigger.
	Rangefinders []RangefinderPins `yaml:"rangefinders"`

	EntranceIRPin string `yaml:"entrance_ir_pin"`
	ExitIRPin     string `yaml:"exit_ir_pin"`

	// IRActiveLow is true for break-beam modules that pull the line low when
	// the beam is interrupted (the common open-collector variant).
	IRActiveLow bool `yaml:"ir_active_low"`

	ServoPin string `yaml:"servo_pin"`

	// I2CBus is the bus name passed to i2creg.Open ("" selects the first bus).
	I2CBus string `yaml:"i2c_bus"`

	// DisplayAddress is the 7-bit I2C address of the LCD backpack.
	DisplayAddress uint16 `yaml:"display_address"`
}

// RangefinderPins wires one ultrasonic sensor.
type RangefinderPins struct {
	ID         string `yaml:"id"`
	TriggerPin string `yaml:"trigger_pin"`
	EchoPin    string `yaml:"echo_pin"`
}

// SensingConfig contains distance thresholds and echo timing.
type SensingConfig struct {
	// DetectionDistance is the distance (cm) below which a spot is occupied.
	DetectionDistance float64 `yaml:"detection_distance"`

	// JustParkedDistance is the band (cm) on the trigger spot that asserts the
	// camera trigger after an entrance cycle.
	JustParkedDistance float64 `yaml:"just_parked_distance"`

	// MinValid and MaxValid bound accepted readings (cm). Anything outside is
	// treated as "no object".
	MinValid float64 `yaml:"min_valid"`
	MaxValid float64 `yaml:"max_valid"`

	// ProximityWarning logs a warning for readings below it (cm). 0 disables.
	ProximityWarning float64 `yaml:"proximity_warning"`

	TriggerPulse time.Duration `yaml:"trigger_pulse"`
	EchoTimeout  time.Duration `yaml:"echo_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Settle is the delay between consecutive sensors to avoid cross-talk.
	Settle time.Duration `yaml:"settle"`

	// SpeedOfSound in cm/s.
	SpeedOfSound float64 `yaml:"speed_of_sound"`
}

// BarrierConfig contains servo PWM and barrier cycle timing.
type BarrierConfig struct {
	Hold    time.Duration `yaml:"hold"`
	Period  time.Duration `yaml:"period"`
	MinDuty float64       `yaml:"min_duty"`
	MaxDuty float64       `yaml:"max_duty"`
	Pulses  int           `yaml:"pulses"`
}

// DisplayConfig contains the character display layout and latch timing.
type DisplayConfig struct {
	Width        int           `yaml:"width"`
	Label        string        `yaml:"label"`
	OfflineLabel string        `yaml:"offline_label"`
	Backlight    bool          `yaml:"backlight"`
	EnablePulse  time.Duration `yaml:"enable_pulse"`
	EnableSettle time.Duration `yaml:"enable_settle"`
}

// LoopConfig contains control loop cadence.
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig is the broker connection used by the bridge.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker. An empty ClientID is derived from
// the machine id.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	// ClientID identifies this controller. Empty derives one from the machine ID.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds optional broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TriggerConfig describes the camera trigger contract and the bridge queue.
type TriggerConfig struct {
	// Topic and Token form the publish contract consumed by the camera node.
	Topic string `yaml:"topic"`
	Token string `yaml:"token"`

	// QueueSize bounds pending publish requests between the loop and the bridge.
	QueueSize int `yaml:"queue_size"`

	// Commands enables the inbound command subscription.
	Commands bool `yaml:"commands"`
}

// DatabaseConfig contains SQLite settings for the bay event journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	QueueSize   int    `yaml:"queue_size"`
}

// InfluxDBConfig configures optional telemetry export.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format and stream.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load layers Default, the YAML file at path and SMARTPARK_* environment
// variables (for example SMARTPARK_MQTT_HOST), then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config matching the reference bay wiring.
func Default() *Config {
	return &Config{
		Bay: BayConfig{
			ID:   "bay-01",
			Name: "SmartPark",
		},
		Hardware: HardwareConfig{
			Rangefinders: []RangefinderPins{
				{ID: "spot-1", TriggerPin: "GPIO23", EchoPin: "GPIO24"},
				{ID: "spot-2", TriggerPin: "GPIO17", EchoPin: "GPIO27"},
				{ID: "spot-3", TriggerPin: "GPIO5", EchoPin: "GPIO6"},
			},
			EntranceIRPin:  "GPIO22",
			ExitIRPin:      "GPIO26",
			IRActiveLow:    true,
			ServoPin:       "GPIO12",
			I2CBus:         "1",
			DisplayAddress: 0x27,
		},
		Sensing: SensingConfig{
			DetectionDistance:  3,
			JustParkedDistance: 9,
			MinValid:           1,
			MaxValid:           10,
			TriggerPulse:       10 * time.Microsecond,
			EchoTimeout:        40 * time.Millisecond,
			PollInterval:       10 * time.Microsecond,
			Settle:             50 * time.Millisecond,
			SpeedOfSound:       34300,
		},
		Barrier: BarrierConfig{
			Hold:    5 * time.Second,
			Period:  20 * time.Millisecond,
			MinDuty: 2.5,
			MaxDuty: 7.5,
			Pulses:  25,
		},
		Display: DisplayConfig{
			Width:        16,
			Label:        "Parking Spaces",
			OfflineLabel: "System Offline",
			Backlight:    true,
			EnablePulse:  500 * time.Microsecond,
			EnableSettle: 100 * time.Microsecond,
		},
		Loop: LoopConfig{
			Interval: 200 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Trigger: TriggerConfig{
			Topic:     "parking/camera",
			Token:     "start_camera",
			QueueSize: 16,
			Commands:  true,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/smartpark.db",
			WALMode:     true,
			BusyTimeout: 5,
			QueueSize:   64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides lets SMARTPARK_* variables replace file values,
// mainly so secrets stay out of the YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMARTPARK_BAY_ID"); v != "" {
		cfg.Bay.ID = v
	}

	// MQTT
	if v := os.Getenv("SMARTPARK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTPARK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTPARK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Journal
	if v := os.Getenv("SMARTPARK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTPARK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SMARTPARK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Bay.ID == "" {
		errs = append(errs, "bay.id is required")
	}

	errs = append(errs, c.Hardware.validate()...)
	errs = append(errs, c.Sensing.validate()...)

	// Barrier
	if c.Barrier.Period <= 0 {
		errs = append(errs, "barrier.period must be positive")
	}
	if c.Barrier.MinDuty < 0 || c.Barrier.MaxDuty > 100 || c.Barrier.MinDuty >= c.Barrier.MaxDuty {
		errs = append(errs, "barrier duty cycle must satisfy 0 <= min_duty < max_duty <= 100")
	}
	if c.Barrier.Pulses < 1 {
		errs = append(errs, "barrier.pulses must be at least 1")
	}
	if c.Barrier.Hold < 0 {
		errs = append(errs, "barrier.hold cannot be negative")
	}

	// Display
	const maxDisplayWidth = 40
	if c.Display.Width < 1 || c.Display.Width > maxDisplayWidth {
		errs = append(errs, "display.width must be between 1 and 40")
	}

	if c.Loop.Interval <= 0 {
		errs = append(errs, "loop.interval must be positive")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.Trigger.Topic == "" || c.Trigger.Token == "" {
		errs = append(errs, "trigger.topic and trigger.token are required")
	}
	if c.Trigger.QueueSize < 1 {
		errs = append(errs, "trigger.queue_size must be at least 1")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (h HardwareConfig) validate() []string {
	var errs []string

	if len(h.Rangefinders) == 0 {
		errs = append(errs, "hardware.rangefinders needs at least one sensor")
	}

	// A pin may only be claimed once across the whole map.
	seen := make(map[string]string)
	claim := func(pin, owner string) {
		if pin == "" {
			errs = append(errs, owner+" is required")
			return
		}
		if prev, ok := seen[pin]; ok {
			errs = append(errs, fmt.Sprintf("%s reuses pin %s already assigned to %s", owner, pin, prev))
			return
		}
		seen[pin] = owner
	}

	ids := make(map[string]bool)
	for i, rf := range h.Rangefinders {
		if rf.ID == "" {
			errs = append(errs, fmt.Sprintf("hardware.rangefinders[%d].id is required", i))
		} else if ids[rf.ID] {
			errs = append(errs, fmt.Sprintf("hardware.rangefinders[%d].id %q is duplicated", i, rf.ID))
		}
		ids[rf.ID] = true
		claim(rf.TriggerPin, fmt.Sprintf("hardware.rangefinders[%d].trigger_pin", i))
		claim(rf.EchoPin, fmt.Sprintf("hardware.rangefinders[%d].echo_pin", i))
	}

	claim(h.EntranceIRPin, "hardware.entrance_ir_pin")
	claim(h.ExitIRPin, "hardware.exit_ir_pin")
	claim(h.ServoPin, "hardware.servo_pin")

	// 7-bit addressing, reserved ranges excluded.
	if h.DisplayAddress < 0x03 || h.DisplayAddress > 0x77 {
		errs = append(errs, "hardware.display_address must be between 0x03 and 0x77")
	}

	return errs
}

func (s SensingConfig) validate() []string {
	var errs []string

	if s.MinValid < 0 || s.MinValid >= s.MaxValid {
		errs = append(errs, "sensing valid band must satisfy 0 <= min_valid < max_valid")
	}
	if s.DetectionDistance <= 0 {
		errs = append(errs, "sensing.detection_distance must be positive")
	}
	if s.JustParkedDistance <= 0 {
		errs = append(errs, "sensing.just_parked_distance must be positive")
	}
	if s.TriggerPulse <= 0 || s.EchoTimeout <= 0 || s.PollInterval <= 0 {
		errs = append(errs, "sensing trigger_pulse, echo_timeout and poll_interval must be positive")
	}
	if s.Settle < 0 {
		errs = append(errs, "sensing.settle cannot be negative")
	}
	if s.SpeedOfSound <= 0 {
		errs = append(errs, "sensing.speed_of_sound must be positive")
	}

	return errs
}

// TotalSpots returns the number of monitored spots.
func (c *Config) TotalSpots() int {
	return len(c.Hardware.Rangefinders)
}

// ReconnectInitialDelay returns the first MQTT reconnect delay as a Duration.
func (c *Config) ReconnectInitialDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second
}

// ReconnectMaxDelay returns the MQTT reconnect backoff ceiling as a Duration.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.MaxDelay) * time.Second
}
