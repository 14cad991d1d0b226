// Package config loads the bot configuration.
//
// Settings come from, lowest priority first: built-in defaults, an
// xfs.toml file, and XFS_* environment variables (XFS_SERVER_NICK sets
// server.nick).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file searched for when no path is given.
const FileName = "xfs.toml"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "XFS"

// Config is the complete bot configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Owner    OwnerConfig    `mapstructure:"owner"`
	Modules  ModulesConfig  `mapstructure:"modules"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig is the connection and identity.
type ServerConfig struct {
	Address  string   `mapstructure:"address"`
	TLS      bool     `mapstructure:"tls"`
	Password string   `mapstructure:"password"`
	Nick     string   `mapstructure:"nick"`
	User     string   `mapstructure:"user"`
	RealName string   `mapstructure:"realname"`
	Channels []string `mapstructure:"channels"`
}

// OwnerConfig identifies the user allowed to run owner-only handlers.
type OwnerConfig struct {
	Nick string `mapstructure:"nick"`
	// Host is an optional host mask, e.g. "*.example.org".
	Host string `mapstructure:"host"`
}

// ModulesConfig controls module discovery.
type ModulesConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
	// Prefixes are recognised in addition to those handlers declare.
	Prefixes []string `mapstructure:"prefixes"`
}

// DispatchConfig sizes the handler worker pool.
type DispatchConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig locates the module data store.
type StoreConfig struct {
	// Path is the SQLite file. Empty disables the store.
	Path string `mapstructure:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:  "localhost:6667",
			Nick:     "xfs",
			User:     "xfs",
			RealName: "xfs bot",
			Channels: []string{},
		},
		Modules: ModulesConfig{
			Dir:      "modules",
			Watch:    true,
			Debounce: 250 * time.Millisecond,
			Prefixes: []string{"."},
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 256,
			Timeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Path: "data/xfs.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// setDefaults registers every key so environment overrides apply.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.tls", d.Server.TLS)
	v.SetDefault("server.password", d.Server.Password)
	v.SetDefault("server.nick", d.Server.Nick)
	v.SetDefault("server.user", d.Server.User)
	v.SetDefault("server.realname", d.Server.RealName)
	v.SetDefault("server.channels", d.Server.Channels)
	v.SetDefault("owner.nick", d.Owner.Nick)
	v.SetDefault("owner.host", d.Owner.Host)
	v.SetDefault("modules.dir", d.Modules.Dir)
	v.SetDefault("modules.watch", d.Modules.Watch)
	v.SetDefault("modules.debounce", d.Modules.Debounce)
	v.SetDefault("modules.prefixes", d.Modules.Prefixes)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.queue_size", d.Dispatch.QueueSize)
	v.SetDefault("dispatch.timeout", d.Dispatch.Timeout)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration. With an empty path, FileName is searched
// for in the working directory and the user config directory; finding
// none is not an error. It returns the file used, if any.
func Load(path string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ""
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", &ParseError{Path: path, Err: err}
		}
		resolved = path
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "xfs"))
		}
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
			resolved = v.ConfigFileUsed()
		case errors.As(err, &notFound):
		default:
			return nil, "", &ParseError{Path: v.ConfigFileUsed(), Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, resolved, nil
}
