package connection

import "errors"

var (
	// ErrUnknownState is returned by Next for a state outside the lifecycle.
	ErrUnknownState = errors.New("connection: unknown state")

	// ErrAlreadyRunning is returned by Run when the machine is already armed.
	ErrAlreadyRunning = errors.New("connection: machine already running")
)
