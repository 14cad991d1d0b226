package config

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned when an explicit config path does not exist.
var ErrFileNotFound = errors.New("config file not found")

// ConfigError reports an invalid setting.
type ConfigError struct {
	// Key is the dotted setting name, e.g. "server.nick".
	Key string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Message)
}

// ParseError wraps a failure to read a config file.
type ParseError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("config: parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
