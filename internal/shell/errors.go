package shell

import "errors"

var (
	// ErrClosed is returned by reads and writes after the connection closed.
	ErrClosed = errors.New("shell: connection closed")

	// ErrNoAddress is returned by Dial without a server address.
	ErrNoAddress = errors.New("shell: server address is required")

	// ErrNoNick is returned by Register without a nick.
	ErrNoNick = errors.New("shell: nick is required")
)
