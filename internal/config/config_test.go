package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.HasOwner())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, path)

	d := Default()
	assert.Equal(t, d.Server.Address, cfg.Server.Address)
	assert.Equal(t, d.Server.Nick, cfg.Server.Nick)
	assert.Empty(t, cfg.Server.Channels)
	assert.Equal(t, d.Modules, cfg.Modules)
	assert.Equal(t, d.Dispatch, cfg.Dispatch)
	assert.Equal(t, d.Store, cfg.Store)
	assert.Equal(t, d.Log, cfg.Log)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
address = "irc.example.org:6697"
tls = true
nick = "xfsbot"
channels = ["#xfs", "#go"]

[owner]
nick = "alice"
host = "*.example.org"

[modules]
dir = "/srv/modules"
watch = false
prefixes = [".", "!"]

[dispatch]
workers = 8
timeout = "5s"
`), 0o644))

	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, "irc.example.org:6697", cfg.Server.Address)
	assert.True(t, cfg.Server.TLS)
	assert.Equal(t, "xfsbot", cfg.Server.Nick)
	assert.Equal(t, "xfs", cfg.Server.User)
	assert.Equal(t, []string{"#xfs", "#go"}, cfg.Server.Channels)
	assert.Equal(t, "alice", cfg.Owner.Nick)
	assert.Equal(t, "*.example.org", cfg.Owner.Host)
	assert.Equal(t, "/srv/modules", cfg.Modules.Dir)
	assert.False(t, cfg.Modules.Watch)
	assert.Equal(t, []string{".", "!"}, cfg.Modules.Prefixes)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 256, cfg.Dispatch.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.Timeout)
	assert.True(t, cfg.HasOwner())
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xfs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nnick = \"fromfile\"\n"), 0o644))

	t.Setenv("XFS_SERVER_NICK", "fromenv")
	t.Setenv("XFS_OWNER_NICK", "bob")
	t.Setenv("XFS_DISPATCH_WORKERS", "2")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Server.Nick)
	assert.Equal(t, "bob", cfg.Owner.Nick)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(FileName, []byte("[owner]\nnick = \"carol\"\n"), 0o644))

	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Owner.Nick)
	assert.NotEmpty(t, used)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nnick = "), 0o644))
	_, _, err = Load(path)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"address", func(c *Config) { c.Server.Address = "" }, "server.address"},
		{"nick", func(c *Config) { c.Server.Nick = "" }, "server.nick"},
		{"nick spaces", func(c *Config) { c.Server.Nick = "x y" }, "server.nick"},
		{"owner host without nick", func(c *Config) { c.Owner.Host = "*.org" }, "owner.nick"},
		{"owner host blank", func(c *Config) { c.Owner.Nick = "a"; c.Owner.Host = " " }, "owner.host"},
		{"modules dir", func(c *Config) { c.Modules.Dir = "" }, "modules.dir"},
		{"empty prefix", func(c *Config) { c.Modules.Prefixes = []string{""} }, "modules.prefixes"},
		{"workers", func(c *Config) { c.Dispatch.Workers = 0 }, "dispatch.workers"},
		{"queue", func(c *Config) { c.Dispatch.QueueSize = 0 }, "dispatch.queue_size"},
		{"timeout", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.key, cerr.Key)
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Server.Nick = ""
	cfg.Dispatch.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.nick")
	assert.Contains(t, err.Error(), "dispatch.workers")
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", FileName)

	want := Default()
	want.Server.Channels = []string{"#xfs"}
	want.Owner.Nick = "alice"
	want.Dispatch.Timeout = 90 * time.Second
	require.NoError(t, want.WriteFile(path, false))

	got, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	assert.Error(t, want.WriteFile(path, false))
	assert.NoError(t, want.WriteFile(path, true))
}

func TestEncode_Comments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Encode(&buf))

	out := buf.String()
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "# owner-only handlers never run while this is empty")
	assert.Contains(t, out, "timeout = '30s'")
}
