package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// document is the on-disk layout. Durations are written as strings so the
// file stays readable.
type document struct {
	Server struct {
		Address  string   `toml:"address" comment:"host:port of the server"`
		TLS      bool     `toml:"tls"`
		Password string   `toml:"password,omitempty"`
		Nick     string   `toml:"nick"`
		User     string   `toml:"user"`
		RealName string   `toml:"realname"`
		Channels []string `toml:"channels" comment:"joined after the server welcomes the bot"`
	} `toml:"server"`
	Owner struct {
		Nick string `toml:"nick" comment:"owner-only handlers never run while this is empty"`
		Host string `toml:"host" comment:"optional host mask, e.g. *.example.org"`
	} `toml:"owner"`
	Modules struct {
		Dir      string   `toml:"dir"`
		Watch    bool     `toml:"watch" comment:"reload modules when their files change"`
		Debounce string   `toml:"debounce"`
		Prefixes []string `toml:"prefixes"`
	} `toml:"modules"`
	Dispatch struct {
		Workers   int    `toml:"workers"`
		QueueSize int    `toml:"queue_size"`
		Timeout   string `toml:"timeout"`
	} `toml:"dispatch"`
	Store struct {
		Path string `toml:"path" comment:"SQLite file for module data; empty disables it"`
	} `toml:"store"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format" comment:"json or console"`
	} `toml:"log"`
}

func toDocument(c Config) document {
	var d document
	d.Server.Address = c.Server.Address
	d.Server.TLS = c.Server.TLS
	d.Server.Password = c.Server.Password
	d.Server.Nick = c.Server.Nick
	d.Server.User = c.Server.User
	d.Server.RealName = c.Server.RealName
	d.Server.Channels = c.Server.Channels
	if d.Server.Channels == nil {
		d.Server.Channels = []string{}
	}
	d.Owner.Nick = c.Owner.Nick
	d.Owner.Host = c.Owner.Host
	d.Modules.Dir = c.Modules.Dir
	d.Modules.Watch = c.Modules.Watch
	d.Modules.Debounce = c.Modules.Debounce.String()
	d.Modules.Prefixes = c.Modules.Prefixes
	d.Dispatch.Workers = c.Dispatch.Workers
	d.Dispatch.QueueSize = c.Dispatch.QueueSize
	d.Dispatch.Timeout = c.Dispatch.Timeout.String()
	d.Store.Path = c.Store.Path
	d.Log.Level = c.Log.Level
	d.Log.Format = c.Log.Format
	return d
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	if err := enc.Encode(toDocument(c)); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}

// WriteFile writes c to path. An existing file is only replaced when
// overwrite is set.
func (c Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
