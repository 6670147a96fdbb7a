package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish queues a message for the given topic and returns immediately.
//
// The payload is handed to paho, which owns it from here on; callers may
// reuse their buffer after Publish returns only if they passed a copy.
// Delivery success is reported through the OnPublished callback, failures
// through the logger.
//
// Returns:
//   - error: Validation or not-connected errors only
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go c.await(token, func(err error) {
		if err != nil {
			c.logError("MQTT publish failed", "topic", topic, "error", err)
			return
		}

		c.callbackMu.RLock()
		callback := c.onPublished
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(topic)
		}
	})

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
