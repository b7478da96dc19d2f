// Package bridge connects the parking controller to the MQTT broker.
//
// The control loop never touches the network. It hands trigger and status
// requests to the Bridge, which queues them and publishes from its own
// goroutine. Inbound operator commands arrive on paho's callback goroutines
// and are passed to the loop through a buffered channel.
//
// Both directions are lossy: a full queue or a disconnected broker drops
// the message with a log line. There is no replay.
//
// Topics:
//
//	<trigger topic>              camera trigger token, not retained
//	smartpark/{bay}/state        retained JSON status
//	smartpark/{bay}/event/{kind} controller events, not retained
//	smartpark/{bay}/command      inbound commands
package bridge
