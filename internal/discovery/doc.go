// Package discovery finds an MQTT broker on the local network via mDNS.
//
// It is consulted once at startup when mqtt.broker.host is empty and
// discovery.enabled is set. The first _mqtt._tcp answer with an address wins.
package discovery
