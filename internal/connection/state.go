package connection

import (
	"fmt"

	"github.com/nerrad567/neurite-core/internal/wifi"
)

// State is a connection lifecycle state.
type State int

const (
	// StateIdle is the initial state. The first tick starts the network.
	StateIdle State = iota
	// StateAwaitingNetwork waits for the station to report an address.
	StateAwaitingNetwork
	// StateAwaitingBroker waits for the broker session.
	StateAwaitingBroker
	// StateSteady relays commands and runs the periodic application slot.
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingNetwork:
		return "awaiting_network"
	case StateAwaitingBroker:
		return "awaiting_broker"
	case StateSteady:
		return "steady"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Action is the side effect the machine asks for on a tick.
type Action int

const (
	ActionNone Action = iota
	ActionConnectNetwork
	ActionConnectBroker
	ActionEnterSteady
	ActionSteadyTick
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionConnectNetwork:
		return "connect_network"
	case ActionConnectBroker:
		return "connect_broker"
	case ActionEnterSteady:
		return "enter_steady"
	case ActionSteadyTick:
		return "steady_tick"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Flags are the readiness conditions the machine waits on.
// Broker implies Network: Apply never sets Broker while Network is false.
type Flags struct {
	Network bool
	Broker  bool
}

// Policy tunes transitions that the basic lifecycle leaves open.
type Policy struct {
	// ResumeOnLoss lets Steady and AwaitingBroker fall back when readiness is
	// lost. When false the machine only moves forward.
	ResumeOnLoss bool
}

// Apply folds an event into the readiness flags.
func Apply(f Flags, ev Event) Flags {
	switch e := ev.(type) {
	case NetworkStatus:
		switch e.Status {
		case wifi.StatusGotIP:
			f.Network = true
		case wifi.StatusIdle:
		default:
			f.Network = false
			f.Broker = false
		}
	case BrokerConnected:
		if f.Network {
			f.Broker = true
		}
	case BrokerDisconnected:
		f.Broker = false
	}
	return f
}

// Next computes one tick: the following state and the action to perform.
// An unrecognised state is returned unchanged with ErrUnknownState.
func Next(s State, f Flags, p Policy) (State, Action, error) {
	switch s {
	case StateIdle:
		return StateAwaitingNetwork, ActionConnectNetwork, nil

	case StateAwaitingNetwork:
		if f.Network {
			return StateAwaitingBroker, ActionConnectBroker, nil
		}
		return s, ActionNone, nil

	case StateAwaitingBroker:
		if p.ResumeOnLoss && !f.Network {
			return StateAwaitingNetwork, ActionNone, nil
		}
		if f.Broker {
			return StateSteady, ActionEnterSteady, nil
		}
		return s, ActionNone, nil

	case StateSteady:
		if p.ResumeOnLoss {
			if !f.Network {
				return StateAwaitingNetwork, ActionNone, nil
			}
			if !f.Broker {
				return StateAwaitingBroker, ActionNone, nil
			}
		}
		return s, ActionSteadyTick, nil

	default:
		return s, ActionNone, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
}
