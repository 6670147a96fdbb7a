package process

import "errors"

// ErrAlreadyRunning is returned by Start when the supervisor is active.
var ErrAlreadyRunning = errors.New("process: already running")
