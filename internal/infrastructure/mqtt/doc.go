// Package mqtt provides MQTT client connectivity for the SmartPark bay controller.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bay controller publishes a single trigger token to the camera node
// and, optionally, retained bay state for dashboards. The broker decouples
// the controller from whatever consumes those messages.
//
//	Bay Controller → MQTT Broker → Camera Node / Dashboards
//
// The control loop never calls this package directly. Publishing happens on
// the bridge goroutine so a slow or absent broker cannot stall sensing.
//
// # Security Considerations
//
//   - TLS is recommended when the broker is off-host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Bay.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BayCommand(cfg.Bay.ID), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("parking/camera", []byte("start_camera"), 1, false)
package mqtt
