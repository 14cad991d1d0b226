package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua: state is closed")

	// ErrLateRegistration is raised when xfs.handler is called after the
	// module finished loading.
	ErrLateRegistration = errors.New("lua: handlers must be declared while the module loads")
)
