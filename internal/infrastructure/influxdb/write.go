package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Neurite.
const (
	MeasurementTransition = "neurite_transition"
	MeasurementCommand    = "neurite_command"
	MeasurementInbound    = "neurite_inbound"
)

// RecordTransition records a connection state change.
//
//	client.RecordTransition("awaiting_broker", "steady")
func (c *Client) RecordTransition(from, to string) {
	c.writePoint(MeasurementTransition,
		map[string]string{"from": from, "to": to},
		map[string]interface{}{"count": 1},
	)
}

// RecordCommand records one relayed command line of the given length.
// The command text itself is not stored.
func (c *Client) RecordCommand(size int) {
	c.writePoint(MeasurementCommand,
		nil,
		map[string]interface{}{"bytes": size},
	)
}

// RecordInbound records a message received on topic.
func (c *Client) RecordInbound(topic string, size int) {
	c.writePoint(MeasurementInbound,
		map[string]string{"topic": topic},
		map[string]interface{}{"bytes": size},
	)
}

// writePoint adds the device tag and queues the point.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	all["device_id"] = c.deviceID

	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, time.Now()))
}
