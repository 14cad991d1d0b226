package trigger

import "errors"

// Spec validation errors.
var (
	// ErrNotTriggerable is returned when a spec declares neither commands nor patterns.
	ErrNotTriggerable = errors.New("trigger: spec has no commands or patterns")

	// ErrEmptyCommand is returned for a blank command token.
	ErrEmptyCommand = errors.New("trigger: empty command")

	// ErrInvalidCommand is returned when a command token contains whitespace.
	ErrInvalidCommand = errors.New("trigger: command must not contain whitespace")

	// ErrEmptyPrefix is returned for a blank prefix.
	ErrEmptyPrefix = errors.New("trigger: empty prefix")

	// ErrInvalidPattern is returned when a regular expression fails to compile.
	ErrInvalidPattern = errors.New("trigger: invalid pattern")

	// ErrInvalidHostMask is returned when a host mask is empty.
	ErrInvalidHostMask = errors.New("trigger: invalid host mask")
)
