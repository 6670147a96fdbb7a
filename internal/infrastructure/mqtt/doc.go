// Package mqtt provides the broker session for Neurite Core.
//
// This package manages:
//   - Session setup: connection, client identity and last will
//   - Fire-and-forget connect, publish and subscribe
//   - Connection, disconnection and published callbacks
//   - Subscription tracking and restoration on reconnect
//
// # Architecture
//
// The connection state machine never waits on the network. It asks the
// session to connect, then observes the OnConnect callback through an event.
// Publish and Subscribe likewise return once paho has queued the request;
// a goroutine per token reports the outcome.
//
//	state machine -> Connect() ... OnConnect -> event -> next tick
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) for any broker outside the local network
//   - Credentials come from config or NEURITE_MQTT_* environment variables
//
// # Usage
//
//	session := mqtt.New(cfg.MQTT, deviceID)
//	session.SetOnConnect(func() { log.Info("broker connected") })
//	_ = session.Connect()
//	...
//	_ = session.Publish(session.Topics().To, []byte("checkin: "+deviceID), 0, false)
package mqtt
