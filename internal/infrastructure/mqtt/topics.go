package mqtt

import "github.com/nerrad567/neurite-core/internal/infrastructure/config"

// Topics is the expanded topic set of one device.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics, "a1b2c3")
//	topics.To // "/neurite/a1b2c3/to"
type Topics struct {
	// From is subscribed to in steady state; messages are written to the output sink.
	From string
	// To carries the checkin announcement and relayed commands.
	To string
	// Status carries periodic status reports.
	Status string
	// Will carries the retained online/offline marker.
	Will string
}

// NewTopics expands the configured topic templates for a device.
func NewTopics(cfg config.MQTTTopicsConfig, deviceID string) Topics {
	return Topics{
		From:   config.Expand(cfg.From, deviceID),
		To:     config.Expand(cfg.To, deviceID),
		Status: config.Expand(cfg.Status, deviceID),
		Will:   config.Expand(cfg.Will, deviceID),
	}
}
