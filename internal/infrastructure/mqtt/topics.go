package mqtt

import "fmt"

// TopicPrefix is the base for all SmartPark topics.
// Scheme: smartpark/{bay}/{category}[/...]
//
// The camera trigger topic is not under this prefix. It is an external
// contract owned by the camera node and comes from config.
const TopicPrefix = "smartpark"

// Topics provides builders for SmartPark MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BayState("bay-01")
//	// Returns: "smartpark/bay-01/state"
type Topics struct{}

// =============================================================================
// Bay Topics
// =============================================================================

// BayState returns the retained availability/barrier state topic for a bay.
//
// Example: smartpark/bay-01/state
func (Topics) BayState(bayID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, bayID)
}

// BayCommand returns the topic the bay listens on for operator commands.
//
// Example: smartpark/bay-01/command
func (Topics) BayCommand(bayID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, bayID)
}

// BayEvent returns the topic for discrete bay events (entry, exit).
//
// Example: smartpark/bay-01/event/entry
func (Topics) BayEvent(bayID, kind string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefix, bayID, kind)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the online/offline status topic for a bay controller.
//
// Example: smartpark/bay-01/system/status
func (Topics) SystemStatus(bayID string) string {
	return fmt.Sprintf("%s/%s/system/status", TopicPrefix, bayID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllBayStates returns a pattern matching every bay's state topic.
//
// Pattern: smartpark/+/state
func (Topics) AllBayStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefix)
}

// AllBayEvents returns a pattern matching every event of one bay.
//
// Pattern: smartpark/bay-01/event/+
func (Topics) AllBayEvents(bayID string) string {
	return fmt.Sprintf("%s/%s/event/+", TopicPrefix, bayID)
}

// AllTopics returns a pattern matching all SmartPark topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: smartpark/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
