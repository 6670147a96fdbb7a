// Package connection sequences bring-up of the network and broker session.
//
// Four states run in order:
//
//	idle -> awaiting_network -> awaiting_broker -> steady
//
// The transition rule is pure: Apply folds readiness events into Flags and
// Next maps (State, Flags, Policy) to the next state and an Action. Machine
// wraps both with a ticker, an event queue and an Actions implementation.
//
// Each state does at most one thing per tick: idle starts the network once,
// awaiting_network starts the broker once an address is held, awaiting_broker
// enters steady once the session is up, and steady runs the periodic
// application slot. With Policy.ResumeOnLoss unset the machine never moves
// backwards; lost readiness leaves it where it is.
package connection
