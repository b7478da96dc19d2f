package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/smartpark-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // ms
	defaultKeepAlive         = 60 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix prefixes generated client identifiers.
	clientIDPrefix = "smartpark-"

	// clientIDHashLen keeps generated identifiers well under the 23 byte
	// limit MQTT 3.1 brokers are allowed to enforce.
	clientIDHashLen = 12
)

// machineID is swapped in tests.
var machineID = machineid.ProtectedID

// resolveClientID returns configured unchanged, or derives a stable identifier
// from the host's machine ID. The ID is hashed with the application name so
// the raw machine ID never leaves the host.
func resolveClientID(configured string) string {
	if configured != "" {
		return configured
	}

	if id, err := machineID("smartpark"); err == nil && len(id) >= clientIDHashLen {
		return clientIDPrefix + id[:clientIDHashLen]
	}

	if host, err := os.Hostname(); err == nil && host != "" {
		return clientIDPrefix + host
	}
	return clientIDPrefix + fmt.Sprintf("%d", os.Getpid())
}

// buildClientOptions maps the mqtt config section onto paho options:
// tcp:// or ssl:// broker URL, optional credentials, a clean session and
// auto-reconnect backing off from Reconnect.InitialDelay to MaxDelay.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// statusPayload is published retained on smartpark/{bay}/system/status.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) string {
	b, _ := json.Marshal(statusPayload{ //nolint:errcheck // plain strings always marshal
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(b)
}

// configureLWT registers the retained "offline" will the broker publishes
// if the bay drops without a clean Close.
func configureLWT(opts *pahomqtt.ClientOptions, bayID, clientID string) {
	opts.SetWill(Topics{}.SystemStatus(bayID), buildStatusPayload("offline", clientID, "unexpected_disconnect"), 1, true)
}

func buildOnlinePayload(clientID string) string {
	return buildStatusPayload("online", clientID, "")
}

func buildOfflinePayload(clientID string) string {
	return buildStatusPayload("offline", clientID, "graceful_shutdown")
}
