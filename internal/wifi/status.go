package wifi

import "fmt"

// Status is the station connection status reported to the connect callback.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusWrongPassword
	StatusNoAPFound
	StatusConnectFail
	StatusGotIP
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusWrongPassword:
		return "wrong_password"
	case StatusNoAPFound:
		return "no_ap_found"
	case StatusConnectFail:
		return "connect_fail"
	case StatusGotIP:
		return "got_ip"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Station brings up the network link.
//
// Connect starts association and returns at once. report is called from
// another goroutine on every status change for as long as the station runs.
type Station interface {
	Connect(ssid, password string, report func(Status))
}
