package connection

import "github.com/nerrad567/neurite-core/internal/wifi"

// Event is a readiness notification from the network or broker layer.
// The set is closed: only the types in this file implement it.
type Event interface {
	event()
}

// NetworkStatus carries a station status change.
type NetworkStatus struct {
	Status wifi.Status
}

// BrokerConnected reports an established broker session.
type BrokerConnected struct{}

// BrokerDisconnected reports a lost broker session. Err may be nil.
type BrokerDisconnected struct {
	Err error
}

func (NetworkStatus) event()      {}
func (BrokerConnected) event()    {}
func (BrokerDisconnected) event() {}
