// Package influxdb records Neurite telemetry in InfluxDB v2.
//
// Three measurements are written, each tagged with device_id:
//   - neurite_transition: connection state changes (tags from, to)
//   - neurite_command: relayed command lines (field bytes)
//   - neurite_inbound: messages received from the broker (tag topic, field bytes)
//
// Telemetry is optional. Connect returns ErrDisabled when influxdb.enabled is
// false, and the rest of the device runs without it.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, deviceID)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordTransition("awaiting_network", "awaiting_broker")
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes never block the caller.
package influxdb
