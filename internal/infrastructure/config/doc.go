// Package config handles loading and validating SmartPark bay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of the pin map and thresholds
//   - Default value handling
//
// The defaults describe the reference bay: three HC-SR04 rangefinders, two
// active-low IR break-beams, a hobby servo on GPIO12 and a PCF8574 LCD
// backpack at 0x27 on I2C bus 1.
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bay.ID, cfg.TotalSpots())
package config
