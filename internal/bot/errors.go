package bot

import "errors"

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("bot: already running")

	// ErrNotConnected is returned when a handler sends while no
	// connection is attached.
	ErrNotConnected = errors.New("bot: not connected")

	// ErrDisconnected is returned by Run when the connection signals close.
	ErrDisconnected = errors.New("bot: connection closed")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
