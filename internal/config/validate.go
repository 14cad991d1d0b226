package config

import (
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/dshills/xfs/internal/trigger"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Validate checks settings needed to run the bot. All problems are
// returned joined; each is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, msg string) {
		errs = append(errs, &ConfigError{Key: key, Message: msg})
	}

	if strings.TrimSpace(c.Server.Address) == "" {
		bad("server.address", "is required")
	}
	if strings.TrimSpace(c.Server.Nick) == "" {
		bad("server.nick", "is required")
	} else if strings.ContainsAny(c.Server.Nick, " \r\n") {
		bad("server.nick", "must not contain whitespace")
	}
	if c.Owner.Host != "" {
		if _, err := trigger.CompileHostMask(c.Owner.Host); err != nil {
			bad("owner.host", err.Error())
		}
	}
	if c.Owner.Host != "" && c.Owner.Nick == "" {
		bad("owner.nick", "is required when owner.host is set")
	}
	if strings.TrimSpace(c.Modules.Dir) == "" {
		bad("modules.dir", "is required")
	}
	if slices.Contains(c.Modules.Prefixes, "") {
		bad("modules.prefixes", "must not contain empty prefixes")
	}
	if c.Modules.Debounce < 0 {
		bad("modules.debounce", "must not be negative")
	}
	if c.Dispatch.Workers < 1 {
		bad("dispatch.workers", "must be at least 1")
	}
	if c.Dispatch.QueueSize < 1 {
		bad("dispatch.queue_size", "must be at least 1")
	}
	if c.Dispatch.Timeout <= 0 {
		bad("dispatch.timeout", "must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		bad("log.level", err.Error())
	}
	if c.Log.Format != FormatJSON && c.Log.Format != FormatConsole {
		bad("log.format", `must be "json" or "console"`)
	}

	return errors.Join(errs...)
}

// HasOwner reports whether an owner identity is configured.
func (c *Config) HasOwner() bool {
	return c.Owner.Nick != ""
}
